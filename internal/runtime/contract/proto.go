package contract

import (
	"context"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/mefengl/note-orpc/internal/runtime/jsoncodec"
	"github.com/mefengl/note-orpc/internal/runtime/rpcerrors"
)

// Proto returns a contract that decodes the wire value into a protobuf
// message of type T via protojson. Unknown fields are rejected so schema
// drift shows up as a client error instead of silent data loss.
func Proto[T proto.Message]() Contract {
	factory, factoryErr := prototypeFactory[T]()

	unmarshal := protojson.UnmarshalOptions{DiscardUnknown: false}

	return Func(func(ctx context.Context, value any) (any, []rpcerrors.Issue, error) {
		if factoryErr != nil {
			return nil, nil, factoryErr
		}

		raw, err := rawJSON(value)
		if err != nil {
			return nil, nil, err
		}

		msg := factory()
		if err := unmarshal.Unmarshal(raw, msg); err != nil {
			return nil, []rpcerrors.Issue{{
				Code:    "invalid_proto",
				Message: err.Error(),
			}}, nil
		}
		return msg, nil, nil
	})
}

func rawJSON(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case jsoncodec.RawMessage:
		return []byte(v), nil
	default:
		return jsoncodec.Marshal(value)
	}
}
