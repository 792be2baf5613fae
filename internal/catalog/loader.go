package catalog

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/coaching-engine/internal/models"
)

//go:embed defaults/*.yaml
var defaultFiles embed.FS

// File names looked up in a catalog directory
var (
	catalogFileNames = []string{"catalog.yaml", "catalog.yml"}
	quizFileNames    = []string{"quiz.yaml", "quiz.yml"}
)

// Loader manages loading and swapping of the catalog snapshot
type Loader struct {
	mu      sync.RWMutex
	current *Catalog
}

// NewLoader creates a new catalog loader with no catalog loaded
func NewLoader() *Loader {
	return &Loader{}
}

// Current returns the loaded catalog (nil before the first successful load)
func (l *Loader) Current() *Catalog {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Set replaces the current catalog
func (l *Loader) Set(c *Catalog) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = c
}

// LoadDefaults loads the catalog and quiz embedded in the binary
func (l *Loader) LoadDefaults() error {
	catalogData, quizData, err := defaultData()
	if err != nil {
		return err
	}

	c, err := Parse(catalogData, quizData)
	if err != nil {
		return fmt.Errorf("failed to parse embedded catalog: %w", err)
	}

	l.Set(c)
	slog.Info("catalog loaded", "source", "embedded",
		"services", len(c.services), "questions", len(c.questions))
	return nil
}

// LoadFromDir loads catalog.yaml and quiz.yaml from a directory.
// A file missing from the directory falls back to the embedded default.
func (l *Loader) LoadFromDir(dir string) error {
	slog.Info("loading catalog from directory", "dir", dir)

	defCatalog, defQuiz, err := defaultData()
	if err != nil {
		return err
	}

	catalogData, err := readFirst(dir, catalogFileNames)
	if err != nil {
		return err
	}
	if catalogData == nil {
		slog.Warn("catalog file not found, using embedded default", "dir", dir)
		catalogData = defCatalog
	}

	quizData, err := readFirst(dir, quizFileNames)
	if err != nil {
		return err
	}
	if quizData == nil {
		slog.Warn("quiz file not found, using embedded default", "dir", dir)
		quizData = defQuiz
	}

	c, err := Parse(catalogData, quizData)
	if err != nil {
		return fmt.Errorf("failed to parse catalog in %s: %w", dir, err)
	}

	l.Set(c)
	slog.Info("catalog loaded", "source", dir,
		"services", len(c.services), "questions", len(c.questions))
	return nil
}

// Parse builds a Catalog from catalog and quiz YAML documents
func Parse(catalogData, quizData []byte) (*Catalog, error) {
	if err := validateDocument(catalogSchema, catalogData); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	var cf catalogFile
	if err := yaml.Unmarshal(catalogData, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
	}

	if err := validateDocument(quizSchema, quizData); err != nil {
		return nil, fmt.Errorf("invalid quiz: %w", err)
	}
	var qf quizFile
	if err := yaml.Unmarshal(quizData, &qf); err != nil {
		return nil, fmt.Errorf("failed to parse quiz YAML: %w", err)
	}

	c := &Catalog{
		services:      make([]models.Service, 0, len(cf.Services)),
		index:         make(map[string]int, len(cf.Services)),
		complementary: make(map[string][]string, len(cf.Complementary)),
		multipliers:   make(map[string]int, len(cf.ROIMultipliers)),
		defaultMult:   cf.DefaultROIMultiplier,
		questionIndex: make(map[string]int, len(qf.Questions)),
	}
	if c.defaultMult == 0 {
		c.defaultMult = DefaultROIMultiplier
	}

	for _, sf := range cf.Services {
		if _, dup := c.index[sf.ID]; dup {
			return nil, fmt.Errorf("duplicate service id %q", sf.ID)
		}
		if sf.PriceMax < sf.PriceMin {
			return nil, fmt.Errorf("service %q: price_max %d is less than price_min %d", sf.ID, sf.PriceMax, sf.PriceMin)
		}

		c.index[sf.ID] = len(c.services)
		c.services = append(c.services, models.Service{
			ID:           sf.ID,
			Title:        sf.Title,
			Description:  sf.Description,
			PriceMin:     sf.PriceMin,
			PriceMax:     sf.PriceMax,
			Duration:     sf.Duration,
			Category:     sf.Category,
			Complexity:   sf.Complexity,
			ValueDrivers: sf.ValueDrivers,
		})
	}

	for id, list := range cf.Complementary {
		if _, ok := c.index[id]; !ok {
			slog.Warn("complementary entry for unknown service", "service", id)
		}
		for _, ref := range list {
			if _, ok := c.index[ref]; !ok {
				slog.Warn("complementary reference to unknown service", "service", id, "ref", ref)
			}
		}
		c.complementary[id] = append([]string(nil), list...)
	}

	for count, rate := range cf.BundleDiscounts {
		if count < 2 {
			return nil, fmt.Errorf("bundle discount key %d must be at least 2", count)
		}
		c.discounts = append(c.discounts, models.DiscountTier{Count: count, Rate: rate})
	}
	sort.Slice(c.discounts, func(i, j int) bool {
		return c.discounts[i].Count < c.discounts[j].Count
	})

	for category, m := range cf.ROIMultipliers {
		c.multipliers[category] = m
	}

	for _, qd := range qf.Questions {
		if _, dup := c.questionIndex[qd.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %q", qd.ID)
		}

		q := models.Question{
			ID:          qd.ID,
			Prompt:      qd.Prompt,
			Cardinality: models.Cardinality(qd.Cardinality),
			Options:     make([]models.Option, 0, len(qd.Options)),
		}
		seen := make(map[string]bool, len(qd.Options))
		for _, of := range qd.Options {
			if seen[of.Value] {
				return nil, fmt.Errorf("question %q: duplicate option %q", qd.ID, of.Value)
			}
			seen[of.Value] = true

			for _, w := range of.Weights {
				if _, ok := c.index[w.ServiceID]; !ok {
					slog.Warn("quiz weight for unknown service",
						"question", qd.ID, "option", of.Value, "service", w.ServiceID)
				}
			}
			q.Options = append(q.Options, models.Option{
				Value:   of.Value,
				Label:   of.Label,
				Weights: []models.Weight(of.Weights),
			})
		}

		c.questionIndex[q.ID] = len(c.questions)
		c.questions = append(c.questions, q)
	}

	return c, nil
}

// defaultData returns the embedded catalog and quiz documents
func defaultData() ([]byte, []byte, error) {
	catalogData, err := defaultFiles.ReadFile("defaults/catalog.yaml")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read embedded catalog: %w", err)
	}
	quizData, err := defaultFiles.ReadFile("defaults/quiz.yaml")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read embedded quiz: %w", err)
	}
	return catalogData, quizData, nil
}

// readFirst returns the content of the first existing file among names (nil if none)
func readFirst(dir string, names []string) ([]byte, error) {
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
	}
	return nil, nil
}

// --- YAML file structs ---

// catalogFile represents the YAML structure of catalog.yaml
type catalogFile struct {
	Services             []serviceFile       `yaml:"services"`
	Complementary        map[string][]string `yaml:"complementary"`
	BundleDiscounts      map[int]float64     `yaml:"bundle_discounts"`
	ROIMultipliers       map[string]int      `yaml:"roi_multipliers"`
	DefaultROIMultiplier int                 `yaml:"default_roi_multiplier"`
}

// serviceFile represents one entry of the services list
type serviceFile struct {
	ID           string   `yaml:"id"`
	Title        string   `yaml:"title"`
	Description  string   `yaml:"description"`
	PriceMin     int      `yaml:"price_min"`
	PriceMax     int      `yaml:"price_max"`
	Duration     int      `yaml:"duration"`
	Category     string   `yaml:"category"`
	Complexity   int      `yaml:"complexity"`
	ValueDrivers []string `yaml:"value_drivers"`
}

// quizFile represents the YAML structure of quiz.yaml
type quizFile struct {
	Questions []questionFile `yaml:"questions"`
}

type questionFile struct {
	ID          string       `yaml:"id"`
	Prompt      string       `yaml:"prompt"`
	Cardinality string       `yaml:"cardinality"`
	Options     []optionFile `yaml:"options"`
}

type optionFile struct {
	Value   string      `yaml:"value"`
	Label   string      `yaml:"label"`
	Weights weightTable `yaml:"weights"`
}

// weightTable decodes a service -> points mapping keeping document order
type weightTable []models.Weight

func (w *weightTable) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: weights must be a mapping", node.Line)
	}

	table := make(weightTable, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var points int
		if err := node.Content[i+1].Decode(&points); err != nil {
			return fmt.Errorf("line %d: weight for %s: %w", node.Content[i].Line, node.Content[i].Value, err)
		}
		table = append(table, models.Weight{ServiceID: node.Content[i].Value, Points: points})
	}
	*w = table
	return nil
}
