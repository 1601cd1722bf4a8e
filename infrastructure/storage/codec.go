package storage

import (
	"chat-relay/domain/chat"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Records are protobuf messages described by proto/storage/storage.proto.
// The descriptor below mirrors that file, so values go through proto.Marshal
// without generated code. Unknown fields written by newer versions are
// kept aside on decode.
var (
	diskMessageDesc protoreflect.MessageDescriptor
	diskUserDesc    protoreflect.MessageDescriptor
)

func init() {
	file, err := protodesc.NewFile(storageFileProto(), nil)
	if err != nil {
		panic(fmt.Sprintf("storage schema: %v", err))
	}
	diskMessageDesc = file.Messages().ByName("DiskMessage")
	diskUserDesc = file.Messages().ByName("DiskUser")
}

func storageFileProto() *descriptorpb.FileDescriptorProto {
	field := func(name string, number int32, kind descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
		return &descriptorpb.FieldDescriptorProto{
			Name:     proto.String(name),
			JsonName: proto.String(name),
			Number:   proto.Int32(number),
			Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
			Type:     kind.Enum(),
		}
	}
	str := descriptorpb.FieldDescriptorProto_TYPE_STRING
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("storage/storage.proto"),
		Package: proto.String("chatrelay.storage"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("DiskMessage"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("id", 1, str),
					field("sender", 2, str),
					field("text", 3, str),
					field("image", 4, str),
					field("created_at", 5, descriptorpb.FieldDescriptorProto_TYPE_INT64),
					field("seq", 6, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
				},
			},
			{
				Name: proto.String("DiskUser"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field("email", 1, str),
					field("name", 2, str),
					field("token", 3, str),
					field("updated_at", 4, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				},
			},
		},
	}
}

// DiskMessage is the stored form of a chat.Message.
type DiskMessage struct {
	ID        string
	Sender    string
	Text      string
	Image     string
	CreatedAt time.Time
	Seq       uint64
}

// record wraps a dynamic message with typed accessors by field name.
type record struct {
	*dynamicpb.Message
}

func newRecord(desc protoreflect.MessageDescriptor) record {
	return record{dynamicpb.NewMessage(desc)}
}

func (r record) fd(name string) protoreflect.FieldDescriptor {
	return r.Descriptor().Fields().ByName(protoreflect.Name(name))
}

func (r record) setString(name, v string) { r.Set(r.fd(name), protoreflect.ValueOfString(v)) }
func (r record) setTime(name string, v time.Time) {
	r.Set(r.fd(name), protoreflect.ValueOfInt64(v.UnixNano()))
}
func (r record) setUint(name string, v uint64) { r.Set(r.fd(name), protoreflect.ValueOfUint64(v)) }

func (r record) str(name string) string { return r.Get(r.fd(name)).String() }
func (r record) at(name string) time.Time {
	return time.Unix(0, r.Get(r.fd(name)).Int()).UTC()
}
func (r record) unsigned(name string) uint64 { return r.Get(r.fd(name)).Uint() }

func marshalMessage(m DiskMessage) ([]byte, error) {
	r := newRecord(diskMessageDesc)
	r.setString("id", m.ID)
	r.setString("sender", m.Sender)
	r.setString("text", m.Text)
	r.setString("image", m.Image)
	r.setTime("created_at", m.CreatedAt)
	r.setUint("seq", m.Seq)
	return proto.Marshal(r)
}

func unmarshalMessage(b []byte) (DiskMessage, error) {
	r := newRecord(diskMessageDesc)
	if err := proto.Unmarshal(b, r); err != nil {
		return DiskMessage{}, err
	}
	return DiskMessage{
		ID:        r.str("id"),
		Sender:    r.str("sender"),
		Text:      r.str("text"),
		Image:     r.str("image"),
		CreatedAt: r.at("created_at"),
		Seq:       r.unsigned("seq"),
	}, nil
}

func marshalUser(u chat.User) ([]byte, error) {
	r := newRecord(diskUserDesc)
	r.setString("email", u.Email)
	r.setString("name", u.Name)
	r.setString("token", u.Token)
	r.setTime("updated_at", u.UpdatedAt)
	return proto.Marshal(r)
}

func unmarshalUser(b []byte) (chat.User, error) {
	r := newRecord(diskUserDesc)
	if err := proto.Unmarshal(b, r); err != nil {
		return chat.User{}, err
	}
	return chat.User{
		Email:     r.str("email"),
		Name:      r.str("name"),
		Token:     r.str("token"),
		UpdatedAt: r.at("updated_at"),
	}, nil
}

func toMessage(d DiskMessage) chat.Message {
	return chat.Message{
		ID:        d.ID,
		Sender:    d.Sender,
		Text:      d.Text,
		Image:     d.Image,
		CreatedAt: d.CreatedAt,
	}
}
