package msgcat

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"text/template"

	yaml "gopkg.in/yaml.v3"
)

//go:embed messages.en.yaml
var defaultFiles embed.FS

const defaultFile = "messages.en.yaml"

// Taunt collections, keyed under "taunts.".
const (
	TauntNeutral    = "taunts.neutral"
	TauntEngineGood = "taunts.engine_good"
	TauntPlayerGood = "taunts.player_good"
)

// tauntThresholdCP separates a neutral evaluation from a clear advantage.
const tauntThresholdCP = 100

// Catalog loads string templates from embedded defaults and an optional override directory.
// Values are rendered with text/template (missing keys cause errors).
type Catalog struct {
	mu   sync.RWMutex
	data map[string]string // flattened dot-keys → template text
}

// New loads the embedded default messages and then applies overrides from dir if provided.
func New(overrideDir string) (*Catalog, error) {
	base := &Catalog{data: make(map[string]string)}

	if err := base.loadEmbedded(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(overrideDir) != "" {
		if err := base.applyDir(overrideDir); err != nil {
			return nil, err
		}
	}
	return base, nil
}

// MustDefault returns the embedded catalog. It panics only if the embedded
// file is broken.
func MustDefault() *Catalog {
	c, err := New("")
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) loadEmbedded() error {
	raw, err := fs.ReadFile(defaultFiles, defaultFile)
	if err != nil {
		return fmt.Errorf("read embedded messages: %w", err)
	}
	return c.applyYAML(raw)
}

func (c *Catalog) applyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read template dir: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		ext := strings.ToLower(filepath.Ext(n))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, n)
		}
	}
	sort.Strings(files)

	seen := make(map[string]string) // key -> filename
	for _, name := range files {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		flat, lists, err := parseYAMLToFlat(b)
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		for k := range flat {
			if prev, ok := seen[k]; ok {
				return fmt.Errorf("duplicate override key %q in %s and %s", k, prev, name)
			}
			seen[k] = name
		}
		c.apply(flat, lists)
	}
	return nil
}

// parseYAMLToFlat flattens a YAML document. Sequences become numbered keys
// ("taunts.neutral.0") and their prefixes are returned in lists.
func parseYAMLToFlat(b []byte) (map[string]string, []string, error) {
	var m map[string]any
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, nil, err
	}
	flat := make(map[string]string)
	var lists []string
	if err := flattenStrings(m, "", flat, &lists); err != nil {
		return nil, nil, err
	}
	return flat, lists, nil
}

func (c *Catalog) applyYAML(b []byte) error {
	flat, lists, err := parseYAMLToFlat(b)
	if err != nil {
		return err
	}
	c.apply(flat, lists)
	return nil
}

// apply merges flat into the catalog. A list in flat replaces the whole
// list of the same name.
func (c *Catalog) apply(flat map[string]string, lists []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, prefix := range lists {
		for k := range c.data {
			if _, ok := listIndex(k, prefix); ok {
				delete(c.data, k)
			}
		}
	}
	for k, v := range flat {
		c.data[k] = v
	}
}

func flattenStrings(src any, prefix string, out map[string]string, lists *[]string) error {
	switch v := src.(type) {
	case map[string]any:
		for k, vv := range v {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if err := flattenStrings(vv, key, out, lists); err != nil {
				return err
			}
		}
		return nil
	case map[any]any:
		tmp := make(map[string]any)
		for kk, vv := range v {
			tmp[fmt.Sprint(kk)] = vv
		}
		return flattenStrings(tmp, prefix, out, lists)
	case []any:
		if prefix == "" {
			return errors.New("list value without key prefix")
		}
		*lists = append(*lists, prefix)
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("unsupported list item at %s.%d: %T", prefix, i, item)
			}
			out[prefix+"."+strconv.Itoa(i)] = s
		}
		return nil
	case string:
		if prefix == "" {
			return errors.New("string value without key prefix")
		}
		out[prefix] = v
		return nil
	case nil:
		return nil
	default:
		// Only string leaves are allowed to avoid type confusion
		return fmt.Errorf("unsupported value at %s: %T", prefix, v)
	}
}

// Render executes a template by key with the provided data map.
// Missing keys cause errors; caller should provide safe fallback.
func (c *Catalog) Render(key string, data any) (string, error) {
	c.mu.RLock()
	tpl, ok := c.data[strings.TrimSpace(key)]
	c.mu.RUnlock()
	if !ok || strings.TrimSpace(tpl) == "" {
		return "", fmt.Errorf("template not found: %s", key)
	}
	t, err := template.New(key).Option("missingkey=error").Parse(tpl)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Text renders key and falls back to the key itself when rendering fails.
func (c *Catalog) Text(key string, data any) string {
	out, err := c.Render(key, data)
	if err != nil {
		return key
	}
	return out
}

// List returns the entries of a sequence in order.
func (c *Catalog) List(prefix string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	type entry struct {
		idx  int
		text string
	}
	var entries []entry
	for k, v := range c.data {
		if idx, ok := listIndex(k, prefix); ok {
			entries = append(entries, entry{idx: idx, text: v})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].idx < entries[j].idx })
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.text)
	}
	return out
}

// TauntSet picks the taunt collection for an evaluation in centipawns from
// White's side. A nil evaluation is neutral.
func TauntSet(evalWhite *int) string {
	switch {
	case evalWhite == nil:
		return TauntNeutral
	case *evalWhite > tauntThresholdCP:
		return TauntPlayerGood
	case *evalWhite < -tauntThresholdCP:
		return TauntEngineGood
	default:
		return TauntNeutral
	}
}

// Taunt returns a random line from the collection matching evalWhite. A
// nil rng uses the package source.
func (c *Catalog) Taunt(evalWhite *int, rng *rand.Rand) string {
	lines := c.List(TauntSet(evalWhite))
	if len(lines) == 0 {
		lines = c.List(TauntNeutral)
	}
	if len(lines) == 0 {
		return ""
	}
	if rng == nil {
		return lines[rand.IntN(len(lines))]
	}
	return lines[rng.IntN(len(lines))]
}

func listIndex(key, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(key, prefix+".")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
