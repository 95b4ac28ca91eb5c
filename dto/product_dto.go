package dto

type VariantDTO struct {
	SKU   string   `json:"sku" binding:"required"`
	Color string   `json:"color"`
	Size  string   `json:"size"`
	Price *float64 `json:"price" binding:"required,gte=0"`
	Stock int      `json:"stock" binding:"gte=0"`
}

type CreateProductDTO struct {
	Name        string       `json:"name" binding:"required"`
	Description string       `json:"description"`
	Categories  []string     `json:"categories"`
	Variants    []VariantDTO `json:"variants" binding:"dive"`
}

type AddReviewDTO struct {
	Name    string `json:"name"`
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment"`
	User    string `json:"user"`
}

type PurchaseDTO struct {
	SKU string `json:"sku" binding:"required"`
	Qty *int   `json:"qty"`
}
