package features

import (
	"context"
	"strings"

	"github.com/lexiview/bridge/bus"
)

// LookupFunc resolves a word to its translation. The production hub
// plugs the external translation client in here; the bus core never
// learns what a translation is.
type LookupFunc func(ctx context.Context, word, lang string) (string, error)

type translateRequest struct {
	Word string `json:"word"`
	Lang string `json:"lang"`
}

type translateResult struct {
	Word        string `json:"word"`
	Lang        string `json:"lang"`
	Translation string `json:"translation"`
}

// RegisterTranslate wires the TRANSLATE_WORD handler around the given
// lookup and returns its unregister func.
func RegisterTranslate(reg *bus.HandlerRegistry, lookup LookupFunc) func() {
	return reg.Register(bus.TypeTranslate, func(ctx context.Context, msg bus.Message) bus.Message {
		var req translateRequest
		if err := bus.DecodePayload(msg, &req); err != nil {
			return bus.Fail("bad translate payload: %v", err)
		}
		req.Word = strings.TrimSpace(req.Word)
		if req.Word == "" {
			return bus.Fail("empty word")
		}
		out, err := lookup(ctx, req.Word, req.Lang)
		if err != nil {
			return bus.Fail("translate %q: %v", req.Word, err)
		}
		return bus.OK(translateResult{Word: req.Word, Lang: req.Lang, Translation: out})
	})
}
