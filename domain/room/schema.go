package room

import (
	"fmt"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// The room API schema is assembled at start-up so request messages carry
// buf.validate rules without a protoc step. Responses are google.protobuf.Struct.

const (
	schemaFile  = "battleship/v1/room.proto"
	schemaPkg   = "battleship.v1"
	ServiceName = schemaPkg + ".RoomService"
)

var (
	RoomFile    protoreflect.FileDescriptor
	RoomService protoreflect.ServiceDescriptor

	CreateRoomRequest  protoreflect.MessageDescriptor
	GetRoomRequest     protoreflect.MessageDescriptor
	ListRoomsRequest   protoreflect.MessageDescriptor
	ListResultsRequest protoreflect.MessageDescriptor
	PingRequest        protoreflect.MessageDescriptor
)

func init() {
	fd, err := buildRoomFile()
	if err != nil {
		panic(fmt.Sprintf("room schema: %v", err))
	}
	RoomFile = fd
	RoomService = fd.Services().ByName("RoomService")

	msgs := fd.Messages()
	CreateRoomRequest = msgs.ByName("CreateRoomRequest")
	GetRoomRequest = msgs.ByName("GetRoomRequest")
	ListRoomsRequest = msgs.ByName("ListRoomsRequest")
	ListResultsRequest = msgs.ByName("ListResultsRequest")
	PingRequest = msgs.ByName("PingRequest")
}

// Method returns the descriptor of a RoomService method, or nil.
func Method(name string) protoreflect.MethodDescriptor {
	return RoomService.Methods().ByName(protoreflect.Name(name))
}

// NewRequest returns an empty request message for desc.
func NewRequest(desc protoreflect.MessageDescriptor) *dynamicpb.Message {
	return dynamicpb.NewMessage(desc)
}

func buildRoomFile() (protoreflect.FileDescriptor, error) {
	code := field("code", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING, &validate.FieldRules{
		Required: proto.Bool(true),
		Type: &validate.FieldRules_String_{String_: &validate.StringRules{
			MinLen: proto.Uint64(1),
			MaxLen: proto.Uint64(64),
		}},
	})
	limit := field("limit", 1, descriptorpb.FieldDescriptorProto_TYPE_INT32, &validate.FieldRules{
		Type: &validate.FieldRules_Int32{Int32: &validate.Int32Rules{
			GreaterThan: &validate.Int32Rules_Gte{Gte: 1},
			LessThan:    &validate.Int32Rules_Lte{Lte: maxResultsLimit},
		}},
	})
	clientTime := field("client_time_unix_millis", 1, descriptorpb.FieldDescriptorProto_TYPE_INT64, nil)

	file := &descriptorpb.FileDescriptorProto{
		Name:    proto.String(schemaFile),
		Package: proto.String(schemaPkg),
		Syntax:  proto.String("proto2"),
		Dependency: []string{
			"buf/validate/validate.proto",
			"google/protobuf/struct.proto",
		},
		MessageType: []*descriptorpb.DescriptorProto{
			message("CreateRoomRequest"),
			message("GetRoomRequest", code),
			message("ListRoomsRequest"),
			message("ListResultsRequest", limit),
			message("PingRequest", clientTime),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("RoomService"),
			Method: []*descriptorpb.MethodDescriptorProto{
				method("CreateRoom"),
				method("GetRoom"),
				method("ListRooms"),
				method("ListResults"),
				method("Ping"),
			},
		}},
	}
	return protodesc.NewFile(file, protoregistry.GlobalFiles)
}

func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

func field(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type, rules *validate.FieldRules) *descriptorpb.FieldDescriptorProto {
	f := &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
	if rules != nil {
		f.Options = &descriptorpb.FieldOptions{}
		proto.SetExtension(f.Options, validate.E_Field, rules)
	}
	return f
}

func method(name string) *descriptorpb.MethodDescriptorProto {
	return &descriptorpb.MethodDescriptorProto{
		Name:       proto.String(name),
		InputType:  proto.String("." + schemaPkg + "." + name + "Request"),
		OutputType: proto.String(".google.protobuf.Struct"),
	}
}
