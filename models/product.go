package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type Product struct {
	Id          bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string        `bson:"name" json:"name"`
	Slug        string        `bson:"slug,omitempty" json:"slug,omitempty"`
	Description string        `bson:"description,omitempty" json:"description,omitempty"`
	Categories  []string      `bson:"categories" json:"categories"`
	Variants    []Variant     `bson:"variants" json:"variants"`
	Reviews     []Review      `bson:"reviews" json:"reviews"`
	ImageUrls   []string      `bson:"imageUrls,omitempty" json:"imageUrls,omitempty"`
	CreatedAt   time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time     `bson:"updatedAt" json:"updatedAt"`
}

// Variant is embedded in its product and has no identity of its own.
type Variant struct {
	SKU   string  `bson:"sku" json:"sku"`
	Color string  `bson:"color,omitempty" json:"color,omitempty"`
	Size  string  `bson:"size,omitempty" json:"size,omitempty"`
	Price float64 `bson:"price" json:"price"`
	Stock int     `bson:"stock" json:"stock"`
}

type Review struct {
	Id        bson.ObjectID  `bson:"_id" json:"id"`
	User      *bson.ObjectID `bson:"user,omitempty" json:"user,omitempty"`
	Name      string         `bson:"name" json:"name"`
	Rating    int            `bson:"rating" json:"rating"`
	Comment   string         `bson:"comment,omitempty" json:"comment,omitempty"`
	CreatedAt time.Time      `bson:"createdAt" json:"createdAt"`
}
