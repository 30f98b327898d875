package taxonomy

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
)

// IOError is a failure to read or write a persisted artifact.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("taxonomy: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func encodeJSON(tree Tree, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	err := enc.Encode(tree)
	if err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ToJSON renders the tree compactly, non-ASCII characters are kept literal.
func ToJSON(tree Tree) ([]byte, error) {
	return encodeJSON(tree, "")
}

func FromJSON(data []byte) (Tree, error) {
	var tree Tree
	err := json.Unmarshal(data, &tree)
	if err != nil {
		return nil, err
	}
	return tree, nil
}

type xmlDocument struct {
	XMLName xml.Name `xml:"pys"`
	Types   []Type   `xml:"type"`
}

// ToXML renders the tree as <pys><type><segment><family><class>, with key
// and name attributes and two space indentation.
func ToXML(tree Tree) ([]byte, error) {
	body, err := xml.MarshalIndent(xmlDocument{Types: tree}, "", "  ")
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(xml.Header)+len(body)+1)
	out = append(out, xml.Header...)
	out = append(out, body...)
	out = append(out, '\n')
	return out, nil
}

func FromXML(data []byte) (Tree, error) {
	var doc xmlDocument
	err := xml.Unmarshal(data, &doc)
	if err != nil {
		return nil, err
	}
	return doc.Types, nil
}

// WriteJSON persists the tree with two space indentation, the file is
// replaced atomically and is durable once this returns.
func WriteJSON(path string, tree Tree) error {
	data, err := encodeJSON(tree, "  ")
	if err != nil {
		return &IOError{Op: "encode", Path: path, Err: err}
	}
	return writeAtomic(path, append(data, '\n'))
}

func WriteXML(path string, tree Tree) error {
	data, err := ToXML(tree)
	if err != nil {
		return &IOError{Op: "encode", Path: path, Err: err}
	}
	return writeAtomic(path, data)
}

func ReadJSON(path string) (Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	tree, err := FromJSON(data)
	if err != nil {
		return nil, &IOError{Op: "decode", Path: path, Err: err}
	}
	return tree, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return &IOError{Op: "write", Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &IOError{Op: "write", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return &IOError{Op: "write", Path: path, Err: err}
	}

	_, err = tmp.Write(data)
	if err != nil {
		return fail(err)
	}
	err = tmp.Sync()
	if err != nil {
		return fail(err)
	}
	err = tmp.Close()
	if err != nil {
		os.Remove(tmpName)
		return &IOError{Op: "write", Path: path, Err: err}
	}
	err = os.Chmod(tmpName, 0644)
	if err != nil {
		os.Remove(tmpName)
		return &IOError{Op: "write", Path: path, Err: err}
	}
	err = os.Rename(tmpName, path)
	if err != nil {
		os.Remove(tmpName)
		return &IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}
