package onnx

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

type NodeInfo struct {
	Name  string `json:"name"`
	DType string `json:"dtype"`
	Shape []any  `json:"shape"`
}

// GraphInfo describes one ONNX graph listed in a manifest.
type GraphInfo struct {
	Name string
	Path string

	Inputs  []NodeInfo
	Outputs []NodeInfo
}

// HasInput reports whether the graph declares an input with the given name.
// Graphs without declared inputs accept any name.
func (g GraphInfo) HasInput(name string) bool {
	if len(g.Inputs) == 0 {
		return true
	}

	for _, in := range g.Inputs {
		if in.Name == name {
			return true
		}
	}

	return false
}

// Manifest is the parsed graphs file of a model set, in declaration order.
type Manifest struct {
	path   string
	graphs map[string]GraphInfo
	order  []string
}

type manifestFile struct {
	Graphs []manifestGraph `json:"graphs"`
}

type manifestGraph struct {
	Name     string     `json:"name"`
	Filename string     `json:"filename"`
	Inputs   []NodeInfo `json:"inputs"`
	Outputs  []NodeInfo `json:"outputs"`
}

func LoadManifest(manifestPath string) (*Manifest, error) {
	if manifestPath == "" {
		return nil, errors.New("manifest path is required")
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read ONNX manifest: %w", err)
	}

	var raw manifestFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode ONNX manifest: %w", err)
	}

	if len(raw.Graphs) == 0 {
		return nil, errors.New("ONNX manifest has no graphs")
	}

	baseDir := filepath.Dir(manifestPath)
	m := &Manifest{
		path:   manifestPath,
		graphs: make(map[string]GraphInfo, len(raw.Graphs)),
		order:  make([]string, 0, len(raw.Graphs)),
	}

	for _, g := range raw.Graphs {
		if g.Name == "" {
			return nil, errors.New("manifest graph has empty name")
		}

		if g.Filename == "" {
			return nil, fmt.Errorf("manifest graph %q has empty filename", g.Name)
		}

		if _, exists := m.graphs[g.Name]; exists {
			return nil, fmt.Errorf("duplicate graph name %q in manifest", g.Name)
		}

		graphPath := g.Filename
		if !filepath.IsAbs(graphPath) {
			graphPath = filepath.Join(baseDir, g.Filename)
		}

		graphPath = filepath.Clean(graphPath)
		if _, err := os.Stat(graphPath); err != nil {
			return nil, fmt.Errorf("graph file for %q: %w", g.Name, err)
		}

		m.graphs[g.Name] = GraphInfo{
			Name:    g.Name,
			Path:    graphPath,
			Inputs:  append([]NodeInfo(nil), g.Inputs...),
			Outputs: append([]NodeInfo(nil), g.Outputs...),
		}
		m.order = append(m.order, g.Name)

		slog.Debug(
			"loaded ONNX graph",
			"name", g.Name,
			"path", graphPath,
			"inputs", nodeNames(g.Inputs),
			"outputs", nodeNames(g.Outputs),
		)
	}

	return m, nil
}

func (m *Manifest) Path() string {
	return m.path
}

func (m *Manifest) Graph(name string) (GraphInfo, bool) {
	g, ok := m.graphs[name]
	if !ok {
		return GraphInfo{}, false
	}

	g.Inputs = append([]NodeInfo(nil), g.Inputs...)
	g.Outputs = append([]NodeInfo(nil), g.Outputs...)

	return g, true
}

func (m *Manifest) Graphs() []GraphInfo {
	out := make([]GraphInfo, 0, len(m.order))
	for _, name := range m.order {
		g := m.graphs[name]
		g.Inputs = append([]NodeInfo(nil), g.Inputs...)
		g.Outputs = append([]NodeInfo(nil), g.Outputs...)
		out = append(out, g)
	}

	return out
}

// Require returns an error naming every graph in names the manifest lacks.
func (m *Manifest) Require(names ...string) error {
	var missing []string
	for _, name := range names {
		if _, ok := m.graphs[name]; !ok {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("manifest %s is missing graphs: %s", m.path, strings.Join(missing, ", "))
	}

	return nil
}

func nodeNames(nodes []NodeInfo) string {
	if len(nodes) == 0 {
		return ""
	}

	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
	}

	return strings.Join(names, ",")
}
