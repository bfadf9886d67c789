package core

import (
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// BlockType discriminates the variants of an article body block.
type BlockType string

const (
	BlockHeading   BlockType = "heading"
	BlockParagraph BlockType = "paragraph"
	BlockImage     BlockType = "image"
)

// Block is one structured piece of an article body. The set of variants is
// closed: HeadingBlock, ParagraphBlock and ImageBlock.
type Block interface {
	Type() BlockType
	envelope() blockEnvelope
}

// HeadingBlock is a section heading.
type HeadingBlock struct {
	Level int
	Text  string
}

// ParagraphBlock is a section body, kept both as generated Markdown and rendered HTML.
type ParagraphBlock struct {
	Markdown string
	HTML     string
}

// ImageBlock places a generated image in the body.
type ImageBlock struct {
	URL     string
	AltText string
}

func (HeadingBlock) Type() BlockType   { return BlockHeading }
func (ParagraphBlock) Type() BlockType { return BlockParagraph }
func (ImageBlock) Type() BlockType     { return BlockImage }

func (b HeadingBlock) envelope() blockEnvelope {
	return blockEnvelope{Type: BlockHeading, Level: b.Level, Text: b.Text}
}

func (b ParagraphBlock) envelope() blockEnvelope {
	return blockEnvelope{Type: BlockParagraph, Markdown: b.Markdown, HTML: b.HTML}
}

func (b ImageBlock) envelope() blockEnvelope {
	return blockEnvelope{Type: BlockImage, URL: b.URL, AltText: b.AltText}
}

// blockEnvelope is the wire shape shared by JSON and BSON.
type blockEnvelope struct {
	Type     BlockType `json:"type" bson:"type"`
	Level    int       `json:"level,omitempty" bson:"level,omitempty"`
	Text     string    `json:"text,omitempty" bson:"text,omitempty"`
	Markdown string    `json:"markdown,omitempty" bson:"markdown,omitempty"`
	HTML     string    `json:"html,omitempty" bson:"html,omitempty"`
	URL      string    `json:"url,omitempty" bson:"url,omitempty"`
	AltText  string    `json:"altText,omitempty" bson:"altText,omitempty"`
}

func (e blockEnvelope) block() (Block, error) {
	switch e.Type {
	case BlockHeading:
		if e.Text == "" || e.Level < 1 || e.Level > 6 {
			return nil, fmt.Errorf("heading block requires text and level 1-6")
		}
		return HeadingBlock{Level: e.Level, Text: e.Text}, nil
	case BlockParagraph:
		if e.Markdown == "" && e.HTML == "" {
			return nil, fmt.Errorf("paragraph block requires markdown or html")
		}
		return ParagraphBlock{Markdown: e.Markdown, HTML: e.HTML}, nil
	case BlockImage:
		if e.URL == "" {
			return nil, fmt.Errorf("image block requires url")
		}
		return ImageBlock{URL: e.URL, AltText: e.AltText}, nil
	default:
		return nil, fmt.Errorf("unknown block type %q", e.Type)
	}
}

// Blocks is an ordered article body.
type Blocks []Block

func (bs Blocks) envelopes() []blockEnvelope {
	out := make([]blockEnvelope, len(bs))
	for i, b := range bs {
		out[i] = b.envelope()
	}
	return out
}

func blocksFromEnvelopes(envs []blockEnvelope) (Blocks, error) {
	out := make(Blocks, 0, len(envs))
	for i, e := range envs {
		b, err := e.block()
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		out = append(out, b)
	}
	return out, nil
}

// MarshalJSON implements json.Marshaler.
func (bs Blocks) MarshalJSON() ([]byte, error) {
	return json.Marshal(bs.envelopes())
}

// UnmarshalJSON implements json.Unmarshaler.
func (bs *Blocks) UnmarshalJSON(data []byte) error {
	var envs []blockEnvelope
	if err := json.Unmarshal(data, &envs); err != nil {
		return err
	}
	decoded, err := blocksFromEnvelopes(envs)
	if err != nil {
		return err
	}
	*bs = decoded
	return nil
}

// MarshalBSONValue implements bson.ValueMarshaler.
func (bs Blocks) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(bs.envelopes())
}

// UnmarshalBSONValue implements bson.ValueUnmarshaler.
func (bs *Blocks) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	var envs []blockEnvelope
	if err := (bson.RawValue{Type: t, Value: data}).Unmarshal(&envs); err != nil {
		return err
	}
	decoded, err := blocksFromEnvelopes(envs)
	if err != nil {
		return err
	}
	*bs = decoded
	return nil
}
