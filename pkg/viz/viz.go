// Package viz draws the change history of a document as a graph, labelling every change with the value found at a
// path at that point in history.
package viz

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/automerge/automerge-go"
	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// RenderHistory writes an SVG of the document's changes to w.
func RenderHistory(doc *automerge.Doc, nodePath []interface{}, w io.Writer) error {
	g := graphviz.New()
	defer g.Close()

	graph, err := g.Graph()
	if err != nil {
		return fmt.Errorf("failed to setup graph: %w", err)
	}
	defer graph.Close()

	changes, err := doc.Changes()
	if err != nil {
		return fmt.Errorf("failed to generate changes: %w", err)
	}

	nodeMap := make(map[string]*cgraph.Node)
	var edgeCounter uint64
	for _, change := range changes {
		docAt, err := doc.Fork(change.Hash())
		if err != nil {
			return fmt.Errorf("failed to checkout %s: %w", change.Hash(), err)
		}
		label, err := labelAt(docAt, nodePath)
		if err != nil {
			return fmt.Errorf("failed to label %s: %w", change.Hash(), err)
		}

		n, err := graph.CreateNode(change.Hash().String())
		if err != nil {
			return fmt.Errorf("failed to create node: %w", err)
		}
		n.SetLabel(fmt.Sprintf("%s %s@%d %q\n%s", change.Hash().String()[:8], change.ActorID(), change.ActorSeq(), change.Message(), label))
		nodeMap[n.Name()] = n

		for _, hash := range change.Dependencies() {
			parent, ok := nodeMap[hash.String()]
			if !ok {
				continue
			}
			if _, err := graph.CreateEdge(strconv.Itoa(int(atomic.AddUint64(&edgeCounter, 1))), parent, n); err != nil {
				return fmt.Errorf("failed to create edge: %w", err)
			}
		}
	}

	var buff bytes.Buffer
	if err := g.Render(graph, graphviz.SVG, &buff); err != nil {
		return fmt.Errorf("failed to render: %w", err)
	}
	if _, err := w.Write(buff.Bytes()); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}
	return nil
}

// labelAt summarises the value at nodePath as JSON. Maps are summarised by their keys.
func labelAt(doc *automerge.Doc, nodePath []interface{}) (string, error) {
	value, err := doc.Path(nodePath...).Get()
	if err != nil || value.Kind() == automerge.KindVoid {
		return "null", nil
	}
	var raw interface{}
	if value.Kind() == automerge.KindMap {
		keys, err := value.Map().Keys()
		if err != nil {
			return "", err
		}
		raw = keys
	} else {
		raw = value.Interface()
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// RenderToTemp renders into a new file in the temp dir and returns its path.
func RenderToTemp(doc *automerge.Doc, nodePath []interface{}) (string, error) {
	tf := filepath.Join(os.TempDir(), fmt.Sprintf("%d%d.svg", time.Now().UnixNano(), rand.Int()))
	f, err := os.Create(tf)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", tf, err)
	}
	defer f.Close()
	if err := RenderHistory(doc, nodePath, f); err != nil {
		return "", err
	}
	return tf, nil
}
