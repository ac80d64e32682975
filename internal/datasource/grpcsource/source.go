package grpcsource

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	effect "github.com/gitter-badger/fetch-2/internal/effect"
	fetchsource "github.com/gitter-badger/fetch-2/internal/fetchsource"
)

// BatchSource is a fetchsource.DataSource backed by a gRPC method whose
// request carries a repeated field of per-request items and whose response
// carries a repeated field of per-response items in the same order. Req and
// Resp stay Go values throughout; Encode and Decode are the only places
// that touch protoreflect.
type BatchSource[Req comparable, Resp any] struct {
	SourceName string
	Endpoint   string
	Method     protoreflect.MethodDescriptor

	// ItemsField names the request's repeated field of batch items.
	ItemsField string
	// ResultsField names the response's repeated field of batch results,
	// aligned by index to the request's ItemsField entries.
	ResultsField string

	// Encode populates one request item message from req.
	Encode func(item protoreflect.Message, req Req)
	// Decode reads one response item message back into a Resp.
	Decode func(item protoreflect.Message) (Resp, error)

	Transport *Transport
}

var _ fetchsource.DataSource[int, int] = (*BatchSource[int, int])(nil) // documents the intended shape; replaced by the caller's own Req/Resp instantiation

func (s *BatchSource[Req, Resp]) Name() string { return s.SourceName }

// Identity uses req itself as the cache key, which is adequate whenever Req
// is small and comparable, such as an int64 id or a string key — the
// common case for a batch lookup RPC.
func (s *BatchSource[Req, Resp]) Identity(req Req) any { return req }

func (s *BatchSource[Req, Resp]) Fetch(ctx context.Context, reqs []Req) effect.Task[map[Req]Resp] {
	return effect.FromFunc(func(ctx context.Context) (map[Req]Resp, error) {
		imd := s.Method.Input()
		itemsField := imd.Fields().ByName(protoreflect.Name(s.ItemsField))
		if itemsField == nil {
			return nil, fmt.Errorf("grpcsource: request %s has no field %q", imd.FullName(), s.ItemsField)
		}
		itemDesc := itemsField.Message()

		request := dynamicpb.NewMessage(imd)
		list := request.Mutable(itemsField).List()
		for _, r := range reqs {
			item := dynamicpb.NewMessage(itemDesc)
			s.Encode(item, r)
			list.Append(protoreflect.ValueOfMessage(item))
		}
		request.Set(itemsField, protoreflect.ValueOfList(list))

		respMsg, err := s.Transport.Call(ctx, s.Endpoint, s.Method, request)
		if err != nil {
			return nil, err
		}

		omd := s.Method.Output()
		resultsField := omd.Fields().ByName(protoreflect.Name(s.ResultsField))
		if resultsField == nil {
			return nil, fmt.Errorf("grpcsource: response %s has no field %q", omd.FullName(), s.ResultsField)
		}
		resultsList := respMsg.Get(resultsField).List()

		out := make(map[Req]Resp, len(reqs))
		for i, r := range reqs {
			if i >= resultsList.Len() {
				break
			}
			item := resultsList.Get(i).Message()
			v, err := s.Decode(item)
			if err != nil {
				return nil, fmt.Errorf("grpcsource: decode result %d: %w", i, err)
			}
			out[r] = v
		}
		return out, nil
	})
}
