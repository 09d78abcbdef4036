package xmessage

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// ParseMap 把 <xml> 根元素的直接子元素解码为扁平映射。
//
// CDATA 与普通文本一样按字符数据读取，值不做裁剪；嵌套元素（如 ScanCodeInfo）整体跳过。
// 同名子元素以最后一个为准。
func ParseMap(raw []byte) (map[string]string, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmptyBody
	}

	dec := xml.NewDecoder(bytes.NewReader(raw))
	root, err := nextStart(dec)
	if err != nil {
		return nil, err
	}
	if root.Name.Local != "xml" {
		return nil, fmt.Errorf("%w: got <%s>", ErrNotXMLRoot, root.Name.Local)
	}

	fields := make(map[string]string)
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, malformed(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			value, err := readLeaf(dec)
			if err != nil {
				return nil, err
			}
			if value != nil {
				fields[t.Name.Local] = *value
			}
		case xml.EndElement:
			return fields, nil
		}
	}
}

// nextStart 跳过声明、注释与空白，返回第一个开始元素。
func nextStart(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return xml.StartElement{}, malformed(err)
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se, nil
		}
	}
}

// readLeaf 读取一个子元素的文本。元素含有子元素时跳过整个子树并返回 nil。
func readLeaf(dec *xml.Decoder) (*string, error) {
	var buf bytes.Buffer
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, malformed(err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf.Write(t)
		case xml.StartElement:
			// 嵌套结构：跳过子元素，再跳过当前元素剩余部分
			if err := dec.Skip(); err != nil {
				return nil, malformed(err)
			}
			if err := dec.Skip(); err != nil {
				return nil, malformed(err)
			}
			return nil, nil
		case xml.EndElement:
			s := buf.String()
			return &s, nil
		}
	}
}

func malformed(err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: %w", ErrMalformed, err)
}
