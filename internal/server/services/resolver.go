package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"

	"github.com/dmitrijs2005/dlkeeper/internal/common"
	"github.com/dmitrijs2005/dlkeeper/internal/logging"
	"github.com/dmitrijs2005/dlkeeper/internal/server/repositories/repomanager"
)

// Resolution names the rule that produced a file key for a line item.
type Resolution string

const (
	ResolutionCatalog   Resolution = "catalog"
	ResolutionLegacy    Resolution = "legacy"
	ResolutionSubstring Resolution = "substring"
	ResolutionDefault   Resolution = "default"
)

// defaultProductName is used when the storefront sends an unnamed item.
const defaultProductName = "Digital Art Print"

// minMatchWordLen drops words like "of" or "a" from substring matching.
const minMatchWordLen = 3

// legacyFileKeys is the product-name table used before the artifact catalog
// existed. It is consulted only when the catalog has no row for a product.
var legacyFileKeys = map[string]string{
	"Flowing Waves Abstract Print":         "flowing_waves_print.png",
	"Minimalist Neutral Abstract":          "minimalist_neutral_abstract_print.png",
	"Terracotta Botanical Print":           "terracotta_botanical_print.png",
	"Minimalist Organic Shapes":            "minimalist_organic_shapes_print.png",
	"Minimalist Line Art Print":            "minimalist_line_art_print.png",
	"Black Blob with Lines":                "black_blob_with_lines_print.png",
	"Grid Pattern Print":                   "grid_pattern_print.png",
	"Stacked Half Circles":                 "stacked_half_circles_print.png",
	"Split Background Arches":              "split_background_arches_print.png",
	"Monolithic Black Shape":               "monolithic_black_shape_print.png",
	"Spiral Tangle Print":                  "spiral_tangle_print.png",
	"Minimalist Terracotta Geometric":      "minimalist_terracotta_geometric_print.png",
	"Minimalist Geometric Beige":           "minimalist_geometric_beige_print.png",
	"Two Brown Forms":                      "two_brown_forms_print.png",
	"Modern Scandinavian Minimalist Art":   "modern_scandinavian_minimalist_beige_cream_textured_wall_art.jpg",
	"Minimalist Beige Cream Geometric":     "minimalist_beige_cream_geometric_scandinavian_wall_art_decor.jpg",
	"Abstract Geometric Modern Living":     "abstract_geometric_wall_art_modern_living_room_neutral_tones.jpg",
	"Minimalist Scandinavian Abstract":     "minimalist_scandinavian_abstract_wall_art_beige_cream.jpg",
	"Abstract Neutral Art Modern":          "abstract_neutral_art_modern_home_decor.jpg",
	"Minimalist Beige Cream Textured":      "minimalist_beige_cream_textured_abstract_wall_art_scandinavian_interior.jpg",
	"Scandinavian Minimalist Abstract Alt": "scandinavian_minimalist_abstract_wall_art_beige_cream.jpg",
	"Minimalist Geometric Wall Art":        "minimalist_geometric_wall_art_beige_cream_scandinavian_living_room.jpg",
	"Scandinavian Minimalist Textured":     "scandinavian_minimalist_textured_wall_art_cream_beige.jpg",
	"Modern Scandinavian Living Room":      "modern_scandinavian_minimalist_beige_cream_wall_art_living_room.jpg",
}

// Resolved is the outcome of mapping one line item to an artifact.
type Resolved struct {
	FileKey     string
	DisplayName string
	Kind        Resolution
}

// Fallback reports whether the key came from a guess rather than a mapping.
func (r Resolved) Fallback() bool {
	return r.Kind == ResolutionSubstring || r.Kind == ResolutionDefault
}

// FileKeyResolver maps products to blob keys: catalog first, then the legacy
// name table, then a substring guess and finally the configured default.
type FileKeyResolver struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	defaultKey  string
	log         logging.Logger

	legacyKeys []string
}

func NewFileKeyResolver(db *sql.DB, rm repomanager.RepositoryManager, defaultKey string, log logging.Logger) *FileKeyResolver {
	keys := make([]string, 0, len(legacyFileKeys))
	for _, k := range legacyFileKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return &FileKeyResolver{
		db:          db,
		repomanager: rm,
		defaultKey:  defaultKey,
		log:         log.With("module", "resolver"),
		legacyKeys:  keys,
	}
}

// Resolve never fails: a catalog outage degrades to the legacy rules.
func (r *FileKeyResolver) Resolve(ctx context.Context, productID, productName string) Resolved {
	if productName == "" {
		productName = defaultProductName
	}

	if productID != "" {
		m, err := r.repomanager.Artifacts(r.db).Resolve(ctx, productID)
		switch {
		case err == nil:
			name := m.DisplayName
			if name == "" {
				name = productName
			}
			return Resolved{FileKey: m.FileKey, DisplayName: name, Kind: ResolutionCatalog}
		case !errors.Is(err, common.ErrorNotFound):
			r.log.Warn(ctx, "artifact catalog lookup failed", "product_id", productID, "error", err)
		}
	}

	if key, ok := legacyFileKeys[productName]; ok {
		return Resolved{FileKey: key, DisplayName: productName, Kind: ResolutionLegacy}
	}

	if key := r.matchSubstring(productName); key != "" {
		return Resolved{FileKey: key, DisplayName: productName, Kind: ResolutionSubstring}
	}

	return Resolved{FileKey: r.defaultKey, DisplayName: productName, Kind: ResolutionDefault}
}

func (r *FileKeyResolver) matchSubstring(productName string) string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(productName)) {
		if len(w) >= minMatchWordLen {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return ""
	}

	for _, key := range r.legacyKeys {
		for _, w := range words {
			if strings.Contains(key, w) {
				return key
			}
		}
	}
	return ""
}
