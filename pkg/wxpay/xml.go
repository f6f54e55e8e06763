package wxpay

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// EncodeXML renders fields in insertion order as <xml><name>value</name>...</xml>.
// Integers are written bare, strings inside CDATA sections.
func EncodeXML(p *Params) []byte {
	var b bytes.Buffer
	b.WriteString("<xml>")
	for _, f := range p.fields {
		b.WriteString("<" + f.name + ">")
		if f.numeric {
			b.WriteString(f.value)
		} else {
			writeCDATA(&b, f.value)
		}
		b.WriteString("</" + f.name + ">")
	}
	b.WriteString("</xml>")
	return b.Bytes()
}

// writeCDATA splits any "]]>" in v across two sections.
func writeCDATA(b *bytes.Buffer, v string) {
	b.WriteString("<![CDATA[")
	b.WriteString(strings.ReplaceAll(v, "]]>", "]]]]><![CDATA[>"))
	b.WriteString("]]>")
}

// DecodeXML reads the direct children of the root element into a map.
// Values are kept byte for byte since they are signed as received. Deeper
// elements are ignored.
func DecodeXML(data []byte) (map[string]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	fields := make(map[string]string)

	var (
		depth int
		name  string
		text  strings.Builder
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 2 {
				name = t.Name.Local
				text.Reset()
			}
		case xml.CharData:
			if depth == 2 {
				text.Write(t)
			}
		case xml.EndElement:
			if depth == 2 {
				fields[name] = text.String()
			}
			depth--
		}
	}
	return fields, nil
}
