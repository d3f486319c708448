package anydata

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/unixpickle/essentials"
)

// A Vocab maps token ids to WordPiece tokens.
//
// Tokens starting with "##" continue the previous word.
type Vocab struct {
	Tokens []string `json:"tokens"`
	Start  int      `json:"start"`
	End    int      `json:"end"`
	Pad    int      `json:"pad"`

	// Unknown, if non-negative, is also dropped when
	// decoding.
	Unknown int `json:"unknown"`
}

// LoadVocab reads a JSON vocabulary file.
func LoadVocab(path string) (*Vocab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, essentials.AddCtx("load vocab", err)
	}
	v := &Vocab{Unknown: -1}
	if err := json.Unmarshal(data, v); err != nil {
		return nil, essentials.AddCtx("load vocab "+path, err)
	}
	for _, id := range []int{v.Start, v.End, v.Pad} {
		if id < 0 || id >= len(v.Tokens) {
			return nil, fmt.Errorf("load vocab %s: special token %d out of range", path, id)
		}
	}
	return v, nil
}

func (v *Vocab) StartID() int { return v.Start }
func (v *Vocab) EndID() int   { return v.End }
func (v *Vocab) PadID() int   { return v.Pad }

// Size returns the number of tokens.
func (v *Vocab) Size() int {
	return len(v.Tokens)
}

// Decode joins the tokens of ids into words, dropping
// special tokens and unknown ids.
func (v *Vocab) Decode(ids []int) string {
	var words []string
	for _, id := range ids {
		if id == v.Start || id == v.End || id == v.Pad || id == v.Unknown ||
			id < 0 || id >= len(v.Tokens) {
			continue
		}
		tok := v.Tokens[id]
		if strings.HasPrefix(tok, "##") && len(words) > 0 {
			words[len(words)-1] += tok[2:]
		} else {
			words = append(words, tok)
		}
	}
	return strings.Join(words, " ")
}
