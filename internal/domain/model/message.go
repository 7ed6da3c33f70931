package model

import "time"

// MessageKind names a broadcast or direct message.
type MessageKind string

const (
	MsgGatePending      MessageKind = "gate_pending"
	MsgGateDestroyed    MessageKind = "gate_destroyed"
	MsgBridgeOpened     MessageKind = "bridge_opened"
	MsgBossSummoned     MessageKind = "boss_summoned"
	MsgQuestItemSpawned MessageKind = "quest_item_spawned"
	MsgQuestItemDrop    MessageKind = "quest_item_dropped"
	MsgQuestItemTaken   MessageKind = "quest_item_acquired"
	MsgDeliveryRefused  MessageKind = "delivery_refused"
	MsgParticipantLeft  MessageKind = "participant_left"
	MsgTerrainChanged   MessageKind = "terrain_changed"
	MsgSiegeEnded       MessageKind = "siege_ended"
	MsgResult           MessageKind = "result"
)

// Message is what a Messenger delivers to one recipient.
type Message struct {
	SiegeID string         `json:"siege_id"`
	Kind    MessageKind    `json:"kind"`
	At      time.Time      `json:"at"`
	Data    map[string]any `json:"data,omitempty"`
}

// NotificationKind names an inbound notification.
type NotificationKind string

const (
	NotifyKill   NotificationKind = "kill"
	NotifyPickup NotificationKind = "pickup"
	NotifyDeath  NotificationKind = "death"
	NotifyRevive NotificationKind = "revive"
	NotifyLeave  NotificationKind = "leave"
)

// Notification is an inbound host event routed to one siege. ID is used for
// idempotency.
type Notification struct {
	ID      string           `json:"id"`
	SiegeID string           `json:"siege_id"`
	Kind    NotificationKind `json:"kind"`
	// Name is the acting participant: the killer, picker, dead or leaving one.
	Name      string   `json:"name"`
	EntityID  int      `json:"entity_id,omitempty"`
	ItemID    int      `json:"item_id,omitempty"`
	Structure bool     `json:"structure,omitempty"`
	Pos       Position `json:"pos"`
}
