package serde

import (
	"encoding/json"
	"fmt"
)

// JSONSerde encodes every blob shape as JSON. encoding/json writes struct
// fields in declaration order and sorts map keys, so equal inputs produce
// byte-equal outputs.
type JSONSerde struct{}

// NewJSON returns the JSON codec.
func NewJSON() JSONSerde {
	return JSONSerde{}
}

func (JSONSerde) SerializeLeaf(l *Leaf) ([]byte, error) {
	return json.Marshal(l)
}

func (JSONSerde) DeserializeLeaf(data []byte) (*Leaf, error) {
	var l Leaf
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to decode leaf: %w", err)
	}
	return &l, nil
}

func (JSONSerde) SerializeBranch(b *Branch) ([]byte, error) {
	return json.Marshal(b)
}

func (JSONSerde) DeserializeBranch(data []byte) (*Branch, error) {
	var b Branch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to decode branch: %w", err)
	}
	return &b, nil
}

func (JSONSerde) SerializeRoot(r *Root) ([]byte, error) {
	return json.Marshal(r)
}

func (JSONSerde) DeserializeRoot(data []byte) (*Root, error) {
	var r Root
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode db-root: %w", err)
	}
	return &r, nil
}

func (JSONSerde) SerializeGarbage(g *Garbage) ([]byte, error) {
	return json.Marshal(g)
}

func (JSONSerde) DeserializeGarbage(data []byte) (*Garbage, error) {
	var g Garbage
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to decode garbage record: %w", err)
	}
	return &g, nil
}

func (JSONSerde) SerializeBlock(b *Block) ([]byte, error) {
	return json.Marshal(b)
}

func (JSONSerde) DeserializeBlock(data []byte) (*Block, error) {
	var b Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to decode block: %w", err)
	}
	return &b, nil
}
