// Package catalog defines the remote pal-catalog contracts consumed by the
// sync orchestrator and the store facade, plus an HTTP implementation.
package catalog

import (
	"context"
	"time"

	"github.com/dmitrijs2005/palstore/internal/models"
)

// Item is a catalog pal as served by the remote API.
type Item struct {
	ID           string                     `json:"id"`
	Name         string                     `json:"name"`
	Description  string                     `json:"description"`
	ThumbnailURL string                     `json:"thumbnail_url"`
	Creator      *models.CreatorInfo        `json:"creator,omitempty"`
	Categories   []string                   `json:"categories,omitempty"`
	Tags         []string                   `json:"tags,omitempty"`
	Rating       float64                    `json:"rating"`
	ReviewCount  int                        `json:"review_count"`
	Protection   string                     `json:"protection,omitempty"`
	Price        float64                    `json:"price"`
	Owned        bool                       `json:"owned"`
	ModelID      string                     `json:"model_id,omitempty"`
	Prompt       string                     `json:"prompt"`
	Capabilities map[string]bool            `json:"capabilities,omitempty"`
	Settings     *models.GenerationSettings `json:"settings,omitempty"`
	PurchasedAt  *time.Time                 `json:"purchased_at,omitempty"`
}

// IsFree reports whether the item can be downloaded without an ownership check.
func (i *Item) IsFree() bool { return i.Price == 0 }

// Query filters a catalog listing request.
type Query struct {
	Text     string
	Category string
	Tag      string
	Page     int
	Limit    int
}

// Page is one page of catalog results.
type Page struct {
	Items      []Item `json:"items"`
	TotalCount int    `json:"total_count"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"has_more"`
}

// Category is a catalog reference-data entry.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Tag is a catalog reference-data entry.
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Ownership is the result of a purchase check for one item.
type Ownership struct {
	Owned       bool       `json:"owned"`
	PurchasedAt *time.Time `json:"purchased_at,omitempty"`
}

// Client describes the remote catalog operations the data layer consumes.
// Implementations must honor context cancellation/timeouts; retry policy is
// the caller's concern (see retryx), not the client's.
type Client interface {
	// Search lists catalog items matching the query.
	Search(ctx context.Context, q Query) (*Page, error)

	// GetByID fetches the current detail of one catalog item.
	GetByID(ctx context.Context, id string) (*Item, error)

	// GetLibrary lists items the current user has purchased.
	GetLibrary(ctx context.Context, q Query) (*Page, error)

	// GetMyItems lists items the current user has published.
	GetMyItems(ctx context.Context, q Query) (*Page, error)

	// GetCategories fetches the category reference list.
	GetCategories(ctx context.Context) ([]Category, error)

	// GetTags fetches the tag reference list.
	GetTags(ctx context.Context, q Query) ([]Tag, error)

	// CheckOwnership verifies the current user owns the given item.
	CheckOwnership(ctx context.Context, id string) (*Ownership, error)
}
