package server

import (
	"bytes"
	"errors"
	"io"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// reloadScript reconnects to /ws and reloads the page on every change.
const reloadScript = `<script>(function(){` +
	`var p=location.protocol==="https:"?"wss:":"ws:";` +
	`function c(){var s=new WebSocket(p+"//"+location.host+"/ws");` +
	`s.onmessage=function(e){var m=JSON.parse(e.data);` +
	`if(m.type==="reload"){location.reload()}else if(m.type==="error"){console.error(m.content)}};` +
	`s.onclose=function(){setTimeout(c,1000)}}c()})();</script>`

// InjectReloadScript inserts script before the closing body tag of page,
// or appends it when the page has no body element. Everything else is
// copied byte for byte.
func InjectReloadScript(page []byte, script string) ([]byte, error) {
	var out bytes.Buffer
	out.Grow(len(page) + len(script))

	z := html.NewTokenizer(bytes.NewReader(page))
	injected := false
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, err
			}
			break
		}

		// TagName lowercases in place, so take the raw bytes first.
		raw := append([]byte(nil), z.Raw()...)
		if !injected && tt == html.EndTagToken {
			name, _ := z.TagName()
			if atom.Lookup(name) == atom.Body {
				out.WriteString(script)
				injected = true
			}
		}
		out.Write(raw)
	}

	if !injected {
		out.WriteString(script)
	}
	return out.Bytes(), nil
}
