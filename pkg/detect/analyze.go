package detect

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/exploopio/scanlens/pkg/textenc"
)

// Report-level keys copied into FormatInfo.Metadata.
var metadataKeys = []string{"tool", "version", "scan_date", "scanner"}

var prefixKeys = map[string]bool{"tool": true, "version": true, "scan_date": true, "scanner": true, "$schema": true}

// Keys whose array length is reported as finding_count, in priority order.
var findingKeys = []string{"findings", "vulnerabilities", "issues", "results"}

// Tool keywords searched in XML root tags and document heads.
var xmlToolKeywords = []string{"checkov", "prowler", "bandit", "nessus", "zap", "burp"}

// AnalyzeJSON decodes content and analyses it as JSON.
func (d *Detector) AnalyzeJSON(content []byte) FormatInfo {
	text, enc, err := textenc.DecodeAuto(content)
	if err != nil {
		info := newInfo(FormatUnknown, 0, enc)
		info.warn("analysis error: " + err.Error())
		return info
	}
	return d.analyzeJSON([]byte(text), enc)
}

// AnalyzeXML decodes content and analyses it as XML.
func (d *Detector) AnalyzeXML(content []byte) FormatInfo {
	text, enc, err := textenc.DecodeAuto(content)
	if err != nil {
		info := newInfo(FormatUnknown, 0, enc)
		info.warn("analysis error: " + err.Error())
		return info
	}
	return d.analyzeXML([]byte(text), enc)
}

// truncated reports whether a preview of n bytes may have been cut off by
// the caller's preview limit.
func (d *Detector) truncated(n int) bool {
	return d.PreviewSize > 0 && n >= d.PreviewSize
}

// =============================================================================
// JSON
// =============================================================================

func (d *Detector) analyzeJSON(content []byte, encoding string) FormatInfo {
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()

	var data any
	err := dec.Decode(&data)
	if err == nil {
		info := newInfo(FormatJSON, ConfidenceStructured, encoding)
		describeJSON(data, info.Metadata)
		return info
	}

	if d.truncated(len(content)) && isTruncation(err) {
		info := newInfo(FormatJSON, ConfidenceMarkup, encoding)
		scanJSONPrefix(content, info.Metadata)
		info.warn("JSON preview ends mid-document; analysed prefix only")
		return info
	}

	info := newInfo(FormatJSON, ConfidenceDegraded, encoding)
	info.warn("JSON parse error: " + err.Error())
	return info
}

func isTruncation(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

func describeJSON(data any, meta map[string]any) {
	switch v := data.(type) {
	case []any:
		meta["finding_count"] = len(v)
	case map[string]any:
		for _, k := range metadataKeys {
			if val, ok := v[k]; ok {
				meta[k] = val
			}
		}
		for _, k := range findingKeys {
			if arr, ok := v[k].([]any); ok {
				meta["finding_count"] = len(arr)
				break
			}
		}
		describeSARIF(v, meta)
	}
}

func describeSARIF(doc map[string]any, meta map[string]any) {
	schema, _ := doc["$schema"].(string)
	runs, hasRuns := doc["runs"].([]any)
	_, hasVersion := doc["version"]
	if !strings.Contains(strings.ToLower(schema), "sarif") && !(hasRuns && hasVersion) {
		return
	}
	meta["sarif"] = true
	if len(runs) == 0 {
		return
	}
	run, _ := runs[0].(map[string]any)
	tool, _ := run["tool"].(map[string]any)
	driver, _ := tool["driver"].(map[string]any)
	if name, ok := driver["name"].(string); ok && name != "" {
		meta["tool"] = name
	}
	if results, ok := run["results"].([]any); ok {
		meta["finding_count"] = len(results)
	}
}

// scanJSONPrefix walks the tokens of a truncated document and records the
// top-level scalar metadata keys it reaches.
func scanJSONPrefix(content []byte, meta map[string]any) {
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return
		}
		if !prefixKeys[key] {
			continue
		}
		var v any
		if json.Unmarshal(raw, &v) == nil {
			switch v.(type) {
			case map[string]any, []any:
			default:
				meta[key] = v
			}
		}
	}
}

// =============================================================================
// XML
// =============================================================================

func (d *Detector) analyzeXML(content []byte, encoding string) FormatInfo {
	dec := xml.NewDecoder(bytes.NewReader(content))
	// content is already UTF-8; ignore the declared charset.
	dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }

	var root *xml.StartElement
	depth := 0
	var err error
	for {
		var tok xml.Token
		tok, err = dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if root == nil {
				el := t.Copy()
				root = &el
			}
			depth++
		case xml.EndElement:
			depth--
		}
		if root != nil && depth == 0 {
			err = io.EOF
			break
		}
	}

	complete := err == io.EOF && root != nil && depth == 0
	if !complete {
		if root != nil && d.truncated(len(content)) && isXMLTruncation(err) {
			info := newInfo(FormatXML, ConfidenceMarkup, encoding)
			describeXML(root, content, info.Metadata)
			info.warn("XML preview ends mid-document; analysed prefix only")
			return info
		}
		if err == io.EOF {
			err = fmt.Errorf("unexpected end of document")
		}
		info := newInfo(FormatXML, ConfidenceDegraded, encoding)
		info.warn("XML parse error: " + err.Error())
		return info
	}

	info := newInfo(FormatXML, ConfidenceMarkup, encoding)
	describeXML(root, content, info.Metadata)
	return info
}

// isXMLTruncation matches the syntax error encoding/xml reports when input
// ends inside an open element.
func isXMLTruncation(err error) bool {
	var se *xml.SyntaxError
	if errors.As(err, &se) {
		return strings.Contains(se.Msg, "unexpected EOF")
	}
	return isTruncation(err)
}

func describeXML(root *xml.StartElement, content []byte, meta map[string]any) {
	tag := root.Name.Local
	meta["root_tag"] = tag

	attrs := make(map[string]string, len(root.Attr))
	for _, a := range root.Attr {
		name := a.Name.Local
		if a.Name.Space != "" {
			name = a.Name.Space + ":" + name
		}
		attrs[name] = a.Value
	}
	meta["namespaces"] = attrs
	if root.Name.Space != "" {
		meta["namespace"] = root.Name.Space
	}

	head := content
	if len(head) > 1000 {
		head = head[:1000]
	}
	lowerTag := strings.ToLower(tag)
	lowerHead := strings.ToLower(string(head))
	for _, kw := range xmlToolKeywords {
		if strings.Contains(lowerTag, kw) || strings.Contains(lowerHead, kw) {
			meta["tool"] = kw
			break
		}
	}
}

// =============================================================================
// YAML
// =============================================================================

func (d *Detector) analyzeYAML(content []byte, encoding string) FormatInfo {
	var data any
	if err := yaml.Unmarshal(content, &data); err != nil {
		info := newInfo(FormatYAML, ConfidenceDegraded, encoding)
		info.warn("YAML parse error: " + err.Error())
		return info
	}

	info := newInfo(FormatYAML, ConfidenceMarkup, encoding)
	switch v := data.(type) {
	case map[string]any:
		for _, k := range metadataKeys {
			if val, ok := v[k]; ok {
				info.Metadata[k] = val
			}
		}
		for _, k := range findingKeys {
			if arr, ok := v[k].([]any); ok {
				info.Metadata["finding_count"] = len(arr)
				break
			}
		}
	case []any:
		info.Metadata["finding_count"] = len(v)
	}
	return info
}
