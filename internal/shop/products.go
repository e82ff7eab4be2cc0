package shop

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/httpclient"
)

type Variant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Stock int    `json:"stock"`
}

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Price       int64     `json:"price"`
	ImageURL    string    `json:"imageUrl"`
	Variants    []Variant `json:"variants"`
}

// CartLine builds the cart line for quantity units of the given variant.
// A variant without its own price uses the product price.
func (p Product) CartLine(variantID string, quantity int) (domain.CartLine, error) {
	if quantity < 1 {
		return domain.CartLine{}, ErrInvalidQuantity
	}
	for _, v := range p.Variants {
		if v.ID != variantID {
			continue
		}
		price := v.Price
		if price == 0 {
			price = p.Price
		}
		name := p.Name
		if v.Name != "" {
			name = p.Name + " - " + v.Name
		}
		return domain.CartLine{
			ProductID: p.ID,
			VariantID: v.ID,
			Name:      name,
			UnitPrice: price,
			ImageRef:  p.ImageURL,
			Quantity:  quantity,
		}, nil
	}
	return domain.CartLine{}, fmt.Errorf("%w: %s/%s", ErrUnknownVariant, p.ID, variantID)
}

type ProductFilter struct {
	Category string
	Search   string
	Page     int
	Limit    int
}

func (f ProductFilter) query() url.Values {
	q := url.Values{}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return q
}

type Products struct {
	http *httpclient.Client
}

func NewProducts(c *httpclient.Client) *Products {
	return &Products{http: c}
}

func (p *Products) List(ctx context.Context, f ProductFilter) ([]Product, error) {
	var resp envelope[[]Product]
	if err := p.http.Do(ctx, httpclient.Request{Path: "/products", Query: f.query()}, &resp); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	if resp.Data == nil {
		return []Product{}, nil
	}
	return resp.Data, nil
}

func (p *Products) Get(ctx context.Context, id string) (*Product, error) {
	var resp envelope[*Product]
	if err := p.http.Do(ctx, httpclient.Request{Path: "/products/" + url.PathEscape(id)}, &resp); err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("get product %s: %w: empty data", id, httpclient.ErrMalformedResponse)
	}
	return resp.Data, nil
}
