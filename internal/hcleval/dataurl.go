package hcleval

import (
	"encoding/base64"
	"fmt"
	"maps"
	"mime"
	"net/url"
	"slices"
	"strings"

	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/specialistvlad/modrun/internal/exports"
)

// decodeDataURL reads a data url holding a JSON object into a namespace with
// one export per top-level key.
func decodeDataURL(u string) (*exports.Namespace, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(u, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("malformed data url %q", u)
	}

	isBase64 := strings.HasSuffix(header, ";base64")
	mediaType := strings.TrimSuffix(header, ";base64")
	if mediaType != "" {
		mt, _, err := mime.ParseMediaType(mediaType)
		if err != nil {
			return nil, fmt.Errorf("data url media type: %w", err)
		}
		if mt != "application/json" {
			return nil, fmt.Errorf("unsupported data url media type %q", mt)
		}
	}

	var body []byte
	if isBase64 {
		b, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("data url payload: %w", err)
		}
		body = b
	} else {
		s, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("data url payload: %w", err)
		}
		body = []byte(s)
	}

	ty, err := ctyjson.ImpliedType(body)
	if err != nil {
		return nil, fmt.Errorf("data url payload: %w", err)
	}
	if !ty.IsObjectType() {
		return nil, fmt.Errorf("data url payload must be a JSON object, got %s", ty.FriendlyName())
	}
	v, err := ctyjson.Unmarshal(body, ty)
	if err != nil {
		return nil, fmt.Errorf("data url payload: %w", err)
	}

	attrs := v.AsValueMap()
	ns := exports.NewModule()
	for _, key := range slices.Sorted(maps.Keys(attrs)) {
		if err := ns.Set(key, attrs[key]); err != nil {
			return nil, err
		}
	}
	return ns, nil
}
