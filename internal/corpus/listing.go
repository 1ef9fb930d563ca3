package corpus

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Listing is one scraped real-estate record. The crawler that produces these
// is out of scope; the builder consumes either the parsed JSON dump or saved
// listing pages.
type Listing struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Price       string   `json:"price"`
	Address     string   `json:"address"`
	Description string   `json:"description"`
	Features    []string `json:"features"`
	AgentName   string   `json:"agent_name"`
	AgentEmail  string   `json:"agent_email"`
	AgentPhone  string   `json:"agent_phone"`
	Photos      []string `json:"photos"`
}

// ListingMeta is the sidecar record persisted next to the index so the
// serving process can resolve answers back to photos and agent contacts.
type ListingMeta struct {
	URL        string   `json:"url"`
	Title      string   `json:"title"`
	Price      string   `json:"price"`
	Address    string   `json:"address"`
	AgentName  string   `json:"agent_name"`
	AgentEmail string   `json:"agent_email"`
	AgentPhone string   `json:"agent_phone"`
	Photos     []string `json:"photos"`
}

// CombinedText renders the listing as one embeddable text block.
func (l Listing) CombinedText() string {
	return fmt.Sprintf(
		"Título: %s. Precio: %s. Dirección: %s. Descripción: %s. Características: %s. "+
			"Agente: %s, Email: %s, Teléfono: %s. Número de fotos: %d. URL: %s",
		l.Title, l.Price, l.Address, l.Description, strings.Join(l.Features, ", "),
		l.AgentName, l.AgentEmail, l.AgentPhone, len(l.Photos), l.URL,
	)
}

func (l Listing) Meta() ListingMeta {
	return ListingMeta{
		URL:        l.URL,
		Title:      l.Title,
		Price:      l.Price,
		Address:    l.Address,
		AgentName:  l.AgentName,
		AgentEmail: l.AgentEmail,
		AgentPhone: l.AgentPhone,
		Photos:     l.Photos,
	}
}

// LoadListings reads a JSON array of parsed listings.
func LoadListings(path string) ([]Listing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read listings file: %w", err)
	}
	var listings []Listing
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, fmt.Errorf("failed to parse listings file: %w", err)
	}
	return listings, nil
}

// ParseListingHTML extracts a Listing from a saved listing page. Selectors
// match the listing portal's markup.
func ParseListingHTML(r io.Reader, url string) (Listing, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Listing{}, fmt.Errorf("failed to parse listing HTML: %w", err)
	}

	listing := Listing{
		URL:         url,
		Title:       strings.TrimSpace(doc.Find("h5.card-title").First().Text()),
		Price:       strings.TrimSpace(doc.Find("h6.text-muted.fw-bold").First().Text()),
		Address:     strings.TrimSpace(doc.Find("h6.small.mb-3.text-muted").First().Text()),
		Description: strings.TrimSpace(doc.Find("p.text-muted[style*='white-space']").First().Text()),
	}

	doc.Find("div.col-sm-12.col-md-6.col-lg-4.my-2").Each(func(_ int, s *goquery.Selection) {
		if f := strings.TrimSpace(s.Text()); f != "" {
			listing.Features = append(listing.Features, f)
		}
	})

	doc.Find("div.row.gx-1.gy-1 img").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && src != "" {
			listing.Photos = append(listing.Photos, src)
		}
	})

	return listing, nil
}

// SaveListingMeta writes the metadata sidecar next to the index directory.
func SaveListingMeta(dir string, metas []ListingMeta) error {
	data, err := json.MarshalIndent(metas, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal listing metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write listing metadata: %w", err)
	}
	return nil
}

// LoadListingMeta reads the metadata sidecar; a missing file is not an error,
// it just means the corpus was built without listing metadata.
func LoadListingMeta(dir string) ([]ListingMeta, error) {
	data, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read listing metadata: %w", err)
	}
	var metas []ListingMeta
	if err := json.Unmarshal(data, &metas); err != nil {
		return nil, fmt.Errorf("failed to parse listing metadata: %w", err)
	}
	return metas, nil
}
