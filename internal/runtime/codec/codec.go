// Package codec translates between the abstract, transport-neutral
// request/response shapes and the runtime's call descriptions. One RPCCodec
// instance corresponds to one wire convention; requests outside the
// convention yield matched=false so adapters can chain handlers.
package codec

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mefengl/note-orpc/internal/runtime/bodylimit"
	"github.com/mefengl/note-orpc/internal/runtime/executor"
	"github.com/mefengl/note-orpc/internal/runtime/jsoncodec"
	"github.com/mefengl/note-orpc/internal/runtime/rpcerrors"
	"github.com/mefengl/note-orpc/internal/runtime/stream"
)

// Wire constants of the RPC convention.
const (
	ContentTypeJSON = "application/json"

	// HeaderLastEventID carries the inbound resumption cursor.
	HeaderLastEventID = "Last-Event-ID"

	inputFieldName = "input"
)

// Request is the abstract request an adapter hands to the core. The body is
// a lazily-read byte stream; the core never touches sockets itself.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   io.Reader
}

// Response is the abstract response the core hands back. Exactly one of
// Body and Stream is populated for non-empty responses.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	Stream *stream.Iterator
}

// File is a binary part decoded from a multipart request, surfaced inside
// the input value under its form field name.
type File struct {
	Filename    string
	ContentType string
	Data        []byte
}

// RPCCodec implements the single-body JSON RPC convention with a multipart
// variant for binary-bearing inputs.
type RPCCodec struct {
	// Prefix is the URL path prefix procedures live under, e.g. "/rpc".
	// Empty means procedures hang off the URL root.
	Prefix string

	// MaxBodyBytes caps the request body; zero disables the guard. The
	// limit is enforced both on the declared length and incrementally while
	// the body streams in.
	MaxBodyBytes int64
}

// New returns a codec for the given URL prefix and body limit.
func New(prefix string, maxBodyBytes int64) *RPCCodec {
	return &RPCCodec{Prefix: prefix, MaxBodyBytes: maxBodyBytes}
}

// Decode extracts a call description from req. A request outside this
// codec's convention (wrong method, prefix, or content type) returns
// matched=false and no error. A matching request with a defective payload
// returns matched=true and a wire-safe error.
func (c *RPCCodec) Decode(req *Request) (*executor.CallDescription, bool, error) {
	if req.Method != http.MethodPost {
		return nil, false, nil
	}
	path, ok := c.splitPath(req.URL)
	if !ok {
		return nil, false, nil
	}

	mediaType, params := parseContentType(req.Header)
	switch mediaType {
	case "", ContentTypeJSON:
	case "multipart/form-data":
		if params["boundary"] == "" {
			return nil, true, rpcerrors.New(rpcerrors.CodeBadRequest, "multipart request without boundary")
		}
	default:
		return nil, false, nil
	}

	if err := bodylimit.Check(declaredLength(req.Header), c.MaxBodyBytes); err != nil {
		return nil, true, err
	}

	input, err := c.decodeBody(req, mediaType, params)
	if err != nil {
		return nil, true, err
	}

	return &executor.CallDescription{
		Path:        path,
		Input:       input,
		LastEventID: req.Header.Get(HeaderLastEventID),
	}, true, nil
}

func (c *RPCCodec) splitPath(u *url.URL) ([]string, bool) {
	if u == nil {
		return nil, false
	}
	raw := u.Path
	if c.Prefix != "" {
		rest, found := strings.CutPrefix(raw, c.Prefix)
		if !found {
			return nil, false
		}
		raw = rest
	}

	var segments []string
	for _, segment := range strings.Split(raw, "/") {
		if segment == "" {
			continue
		}
		unescaped, err := url.PathUnescape(segment)
		if err != nil {
			return nil, false
		}
		segments = append(segments, unescaped)
	}
	if len(segments) == 0 {
		return nil, false
	}
	return segments, true
}

func (c *RPCCodec) decodeBody(req *Request, mediaType string, params map[string]string) (any, error) {
	if req.Body == nil {
		return nil, nil
	}
	limited := bodylimit.Reader(req.Body, c.MaxBodyBytes)

	if mediaType == "multipart/form-data" {
		return c.decodeMultipart(limited, params["boundary"])
	}

	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, asWireError(err, "failed to read request body")
	}
	if len(data) == 0 {
		return nil, nil
	}

	var input any
	if err := jsoncodec.Unmarshal(data, &input); err != nil {
		return nil, rpcerrors.New(rpcerrors.CodeBadRequest, "malformed JSON request body", rpcerrors.WithCause(err))
	}
	return input, nil
}

// decodeMultipart reads the "input" JSON field plus any binary file parts,
// merging files into the input object under their field names.
func (c *RPCCodec) decodeMultipart(body io.Reader, boundary string) (any, error) {
	reader := multipart.NewReader(body, boundary)

	var input any
	files := map[string]File{}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, asWireError(err, "malformed multipart request body")
		}

		data, err := io.ReadAll(part)
		if err != nil {
			part.Close()
			return nil, asWireError(err, "failed to read multipart part")
		}
		name := part.FormName()
		filename := part.FileName()
		contentType := part.Header.Get("Content-Type")
		part.Close()

		if name == inputFieldName && filename == "" {
			if err := jsoncodec.Unmarshal(data, &input); err != nil {
				return nil, rpcerrors.New(rpcerrors.CodeBadRequest, "malformed JSON input field", rpcerrors.WithCause(err))
			}
			continue
		}
		files[name] = File{Filename: filename, ContentType: contentType, Data: data}
	}

	if len(files) == 0 {
		return input, nil
	}

	merged, ok := input.(map[string]any)
	if !ok {
		merged = map[string]any{}
	}
	for name, file := range files {
		merged[name] = file
	}
	return merged, nil
}

// EncodeResponse serializes a successful execution result.
func (c *RPCCodec) EncodeResponse(out any) (*Response, error) {
	if out == nil {
		return &Response{Status: http.StatusNoContent, Header: http.Header{}}, nil
	}

	if it, ok := out.(*stream.Iterator); ok {
		header := http.Header{}
		header.Set("Content-Type", stream.ContentType)
		return &Response{Status: http.StatusOK, Header: header, Stream: it}, nil
	}

	body, err := jsoncodec.Marshal(out)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Content-Type", ContentTypeJSON)
	return &Response{Status: http.StatusOK, Header: header, Body: body}, nil
}

// EncodeError serializes a failure. The error is classified first, so even
// a non-typed error produces a well-formed wire body.
func (c *RPCCodec) EncodeError(err error) *Response {
	rpcErr := rpcerrors.Classify(err)

	body, marshalErr := jsoncodec.Marshal(rpcErr)
	if marshalErr != nil {
		// The data payload failed to serialize; send the error without it.
		stripped := rpcErr.Clone()
		stripped.Data = nil
		body, _ = jsoncodec.Marshal(stripped)
	}

	header := http.Header{}
	header.Set("Content-Type", ContentTypeJSON)
	return &Response{Status: rpcErr.Status, Header: header, Body: body}
}

// DecodeResponse recovers an output value (or wire error) from an encoded
// response body. It is the client side of EncodeResponse/EncodeError and
// needs no codec state, so it is a plain function.
func DecodeResponse(status int, body []byte, out any) error {
	if status == http.StatusNoContent {
		return nil
	}
	if status >= 400 {
		wireErr := &rpcerrors.Error{}
		if err := jsoncodec.Unmarshal(body, wireErr); err != nil || wireErr.Code == "" {
			return rpcerrors.New(rpcerrors.CodeInternalServerError, "malformed error response")
		}
		return wireErr
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	return jsoncodec.Unmarshal(body, out)
}

func parseContentType(header http.Header) (string, map[string]string) {
	raw := header.Get("Content-Type")
	if raw == "" {
		return "", nil
	}
	mediaType, params, err := mime.ParseMediaType(raw)
	if err != nil {
		return raw, nil
	}
	return mediaType, params
}

func declaredLength(header http.Header) int64 {
	raw := header.Get("Content-Length")
	if raw == "" {
		return -1
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// asWireError keeps typed errors (notably the body-limit trip) intact and
// wraps anything else as a BAD_REQUEST.
func asWireError(err error, message string) error {
	var rpcErr *rpcerrors.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return rpcerrors.New(rpcerrors.CodeBadRequest, message, rpcerrors.WithCause(err))
}
