package model

import "time"

// Receiving document statuses.
const (
	ReceivingStatusDraft      = "DRAFT"
	ReceivingStatusInProgress = "IN_PROGRESS"
	ReceivingStatusOnHold     = "ON_HOLD"
	ReceivingStatusCompleted  = "COMPLETED"
	ReceivingStatusCancelled  = "CANCELLED"
)

// Shipping order statuses.
const (
	ShippingStatusNew     = "NEW"
	ShippingStatusPicking = "PICKING"
	ShippingStatusStaged  = "STAGED"
	ShippingStatusShipped = "SHIPPED"
)

// Task statuses shared by put-away and cycle-count tasks.
const (
	TaskStatusOpen       = "OPEN"
	TaskStatusInProgress = "IN_PROGRESS"
	TaskStatusBlocked    = "BLOCKED"
	TaskStatusCompleted  = "COMPLETED"
	TaskStatusReconciled = "RECONCILED"
)

// ReceivingDocument is an inbound receipt being worked on the dock.
// HoldReason lives on the document so it survives restarts and is shared by every instance.
type ReceivingDocument struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	Status         string          `gorm:"size:20;index;not null" json:"status"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	AssignedUserID *uint           `gorm:"index" json:"assigned_user_id,omitempty"`
	AssignedUser   *User           `gorm:"foreignKey:AssignedUserID" json:"assigned_user,omitempty"`
	HoldReason     string          `gorm:"size:255" json:"hold_reason,omitempty"`
	Items          []ReceivingItem `gorm:"foreignKey:DocumentID" json:"items,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (ReceivingDocument) TableName() string {
	return "receiving_documents"
}

// ReceivingItem is one expected line of a receiving document.
type ReceivingItem struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	DocumentID   uint   `gorm:"index;not null" json:"document_id"`
	ItemSKU      string `gorm:"size:100" json:"item_sku"`
	ExpectedQty  int    `json:"expected_qty"`
	ReceivedQty  int    `json:"received_qty"`
	LocationCode string `gorm:"size:50" json:"location_code"`
}

func (ReceivingItem) TableName() string {
	return "receiving_items"
}

// MissingLocation reports whether the line was received without a put-away location.
func (i ReceivingItem) MissingLocation() bool {
	return i.LocationCode == ""
}

// Incomplete reports whether the line has not been fully received yet.
func (i ReceivingItem) Incomplete() bool {
	return i.ReceivedQty < i.ExpectedQty
}

// ShippingOrder is an outbound order moving through pick, stage and ship.
type ShippingOrder struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Status         string         `gorm:"size:20;index;not null" json:"status"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	StagedAt       *time.Time     `json:"staged_at,omitempty"`
	ShippedAt      *time.Time     `json:"shipped_at,omitempty"`
	AssignedUserID *uint          `gorm:"index" json:"assigned_user_id,omitempty"`
	AssignedUser   *User          `gorm:"foreignKey:AssignedUserID" json:"assigned_user,omitempty"`
	Lines          []ShippingLine `gorm:"foreignKey:OrderID" json:"lines,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (ShippingOrder) TableName() string {
	return "shipping_orders"
}

// PhaseStart is when the order entered its current phase. Staged and shipped
// orders count from staged_at, picking orders from started_at, and created_at
// fills any gap.
func (o ShippingOrder) PhaseStart() time.Time {
	candidates := []*time.Time{o.StartedAt}
	if o.Status == ShippingStatusStaged || o.Status == ShippingStatusShipped {
		candidates = []*time.Time{o.StagedAt, o.StartedAt}
	}
	for _, c := range candidates {
		if c != nil && !c.IsZero() {
			return *c
		}
	}
	return o.CreatedAt
}

type ShippingLine struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	OrderID    uint   `gorm:"index;not null" json:"order_id"`
	ItemSKU    string `gorm:"size:100" json:"item_sku"`
	Qty        int    `json:"qty"`
	PickedQty  int    `json:"picked_qty"`
	PickFromLC string `gorm:"size:50;column:pick_from_location" json:"pick_from_location"`
}

func (ShippingLine) TableName() string {
	return "shipping_lines"
}

// PutawayTask moves a received pallet into a storage location.
type PutawayTask struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Status         string    `gorm:"size:20;index;not null" json:"status"`
	AssignedUserID *uint     `gorm:"index" json:"assigned_user_id,omitempty"`
	AssignedUser   *User     `gorm:"foreignKey:AssignedUserID" json:"assigned_user,omitempty"`
	PalletID       string    `gorm:"size:100" json:"pallet_id"`
	LocationCode   string    `gorm:"size:50" json:"location_code"`
	Notes          string    `gorm:"type:text" json:"notes"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (PutawayTask) TableName() string {
	return "putaway_tasks"
}

// CycleCountTask is a stock count on one location or item.
type CycleCountTask struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Status     string    `gorm:"size:20;index;not null" json:"status"`
	TargetCode string    `gorm:"size:100" json:"target_code"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (CycleCountTask) TableName() string {
	return "cycle_count_tasks"
}

type Location struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Code     string `gorm:"size:50;uniqueIndex" json:"code"`
	Zone     string `gorm:"size:50;index" json:"zone"`
	Capacity int    `json:"capacity"`
}

func (Location) TableName() string {
	return "locations"
}

// InventoryBalance is the on-hand quantity of one item in one location.
type InventoryBalance struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	ItemID     uint `gorm:"index:idx_inventory_item_location,unique" json:"item_id"`
	LocationID uint `gorm:"index:idx_inventory_item_location,unique;index" json:"location_id"`
	Qty        int  `json:"qty"`
}

func (InventoryBalance) TableName() string {
	return "inventory_balances"
}

// LocationUsage pairs a location with the quantity currently stored in it.
type LocationUsage struct {
	Location Location
	Used     int
}

// User is a warehouse operator. LastActivity is the device heartbeat.
type User struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Name         string     `gorm:"size:150" json:"name"`
	Shift        string     `gorm:"size:20" json:"shift"`
	Role         string     `gorm:"size:30;index" json:"role"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
