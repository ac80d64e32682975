package grpcsource_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/gitter-badger/fetch-2/internal/datasource/grpcsource"
)

// batchMethod builds a synthetic Echo.Batch method descriptor whose request
// carries a repeated Item field named "items" and whose response reuses the
// same message, so tests can exercise field lookup without a .proto file.
func batchMethod(t *testing.T) protoreflect.MethodDescriptor {
	t.Helper()

	fileProto := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("grpcsource_test.proto"),
		Package: proto.String("grpcsourcetest"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("Item"),
				Field: []*descriptorpb.FieldDescriptorProto{
					{
						Name:   proto.String("id"),
						Number: proto.Int32(1),
						Type:   descriptorpb.FieldDescriptorProto_TYPE_INT32.Enum(),
						Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
					},
				},
			},
			{
				Name: proto.String("BatchRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{
					{
						Name:     proto.String("items"),
						Number:   proto.Int32(1),
						Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
						Label:    descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum(),
						TypeName: proto.String(".grpcsourcetest.Item"),
					},
				},
			},
		},
		Service: []*descriptorpb.ServiceDescriptorProto{
			{
				Name: proto.String("Echo"),
				Method: []*descriptorpb.MethodDescriptorProto{
					{
						Name:       proto.String("Batch"),
						InputType:  proto.String(".grpcsourcetest.BatchRequest"),
						OutputType: proto.String(".grpcsourcetest.BatchRequest"),
					},
				},
			},
		},
	}

	fd, err := protodesc.NewFile(fileProto, protoregistry.GlobalFiles)
	require.NoError(t, err)
	return fd.Services().Get(0).Methods().Get(0)
}

func TestFetchFailsWhenItemsFieldIsMissing(t *testing.T) {
	method := batchMethod(t)
	src := &grpcsource.BatchSource[int, string]{
		SourceName:   "Echo",
		Method:       method,
		ItemsField:   "not_a_real_field",
		ResultsField: "items",
		Encode:       func(item protoreflect.Message, req int) {},
		Decode:       func(item protoreflect.Message) (string, error) { return "", nil },
	}

	_, err := src.Fetch(context.Background(), []int{1}).Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "not_a_real_field")
}

func TestNameReportsTheConfiguredSourceName(t *testing.T) {
	src := &grpcsource.BatchSource[int, string]{SourceName: "Echo"}
	require.Equal(t, "Echo", src.Name())
}

func TestIdentityUsesTheRequestItself(t *testing.T) {
	src := &grpcsource.BatchSource[int, string]{SourceName: "Echo"}
	require.Equal(t, 42, src.Identity(42))
}
