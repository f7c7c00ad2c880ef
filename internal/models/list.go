package models

import (
	"time"
)

// List is a shared checklist addressed publicly by its slug.
// The numeric ID doubles as the room identifier for real-time sync.
type List struct {
	ID                  uint       `json:"id" gorm:"primaryKey"`
	Slug                string     `json:"slug" gorm:"type:varchar(32);not null;uniqueIndex"`
	Title               string     `json:"title" gorm:"type:varchar(255);not null;default:'My List'"`
	Description         *string    `json:"description" gorm:"type:text"`
	PasswordHash        *string    `json:"-" gorm:"column:password_hash;type:varchar(255)"`
	IsPasswordProtected bool       `json:"isPasswordProtected" gorm:"not null;default:false"`
	CreatedAt           time.Time  `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt           time.Time  `json:"updatedAt" gorm:"autoUpdateTime"`
	ExpiresAt           *time.Time `json:"expiresAt" gorm:"index"`
}

func (List) TableName() string {
	return "lists"
}

// ListItem is one row of a list. Order is ascending; new items are prepended.
type ListItem struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	ListID    uint      `json:"listId" gorm:"not null;index:idx_items_list_order"`
	Text      string    `json:"text" gorm:"type:text;not null"`
	Completed bool      `json:"completed" gorm:"not null;default:false"`
	Color     string    `json:"color" gorm:"type:varchar(32)"`
	Order     int       `json:"order" gorm:"column:sort_order;not null;default:0;index:idx_items_list_order"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

func (ListItem) TableName() string {
	return "list_items"
}

// ListWithItems is the full state a client loads on (re)join.
type ListWithItems struct {
	List
	Items          []ListItem `json:"items"`
	ActiveSessions int64      `json:"activeSessions"`
}

type ListCreate struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Password    string `json:"password"`
	ExpiresIn   string `json:"expiresIn"` // "1d", "1w", "1m", "inf" or empty
}

type ListPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

type ItemCreate struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

type ItemPatch struct {
	Text      *string `json:"text,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
	Color     *string `json:"color,omitempty"`
	Order     *int    `json:"order,omitempty"`
}

// ItemOrder assigns a new position to one item.
type ItemOrder struct {
	ID    uint `json:"id"`
	Order int  `json:"order"`
}
