package conversation

import (
	"testing"
	"time"

	msgmodel "PPDirect/module/message/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func msg(sender, receiver, content string, at time.Time, read bool) msgmodel.Message {
	return msgmodel.Message{
		ID:        primitive.NewObjectID(),
		Sender:    sender,
		Receiver:  receiver,
		Content:   content,
		Read:      read,
		CreatedAt: at,
	}
}

func TestDeriveGroupsByPartnerLatestWins(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	msgs := []msgmodel.Message{
		msg("me", "a", "first", base, true),
		msg("a", "me", "second", base.Add(time.Minute), false),
		msg("a", "me", "third", base.Add(2*time.Minute), false),
	}
	convs := Derive("me", msgs, []string{"a"})
	if len(convs) != 1 {
		t.Fatalf("want 1 conversation, got %d", len(convs))
	}
	c := convs[0]
	if c.LastMessage != "third" || c.LastMessageSenderID != "a" {
		t.Fatalf("latest message should win: %+v", c)
	}
	if c.Unread != 2 {
		t.Fatalf("unread should only count received-unread, got %d", c.Unread)
	}
}

func TestDeriveUnreadIgnoresOwnMessages(t *testing.T) {
	base := time.Now()
	msgs := []msgmodel.Message{
		msg("me", "a", "sent unread by them", base, false),
	}
	convs := Derive("me", msgs, []string{"a"})
	if convs[0].Unread != 0 {
		t.Fatalf("own sent messages must not count as unread, got %d", convs[0].Unread)
	}
}

func TestDeriveSynthesizesEmptyConversations(t *testing.T) {
	convs := Derive("me", nil, []string{"b", "a"})
	if len(convs) != 2 {
		t.Fatalf("mutual follows without history should still appear, got %d", len(convs))
	}
	for _, c := range convs {
		if c.HasMessages() {
			t.Fatalf("synthesized entry must not claim messages: %+v", c)
		}
		if !c.LastMessageTime.Equal(time.Unix(0, 0).UTC()) {
			t.Fatalf("synthesized entry must carry the epoch timestamp")
		}
	}
	// 并列时按对端ID升序
	if convs[0].User.ID != "a" || convs[1].User.ID != "b" {
		t.Fatalf("tie-break should sort by partner id: %s, %s", convs[0].User.ID, convs[1].User.ID)
	}
}

func TestDeriveSecurityFilter(t *testing.T) {
	msgs := []msgmodel.Message{
		msg("stranger", "me", "hello", time.Now(), false),
	}
	convs := Derive("me", msgs, []string{"friend"})
	for _, c := range convs {
		if c.User.ID == "stranger" {
			t.Fatalf("non-mutual partner must be filtered out of the list")
		}
	}
	if len(convs) != 1 || convs[0].User.ID != "friend" {
		t.Fatalf("want only the mutual friend, got %+v", convs)
	}
}

func TestDeriveOrdering(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	msgs := []msgmodel.Message{
		msg("old", "me", "older", base, true),
		msg("new", "me", "newer", base.Add(time.Hour), true),
	}
	convs := Derive("me", msgs, []string{"old", "new", "silent"})
	if len(convs) != 3 {
		t.Fatalf("want 3 conversations, got %d", len(convs))
	}
	// 有消息的在前、按时间倒序；没聊过的垫底
	if convs[0].User.ID != "new" || convs[1].User.ID != "old" || convs[2].User.ID != "silent" {
		t.Fatalf("unexpected order: %s, %s, %s", convs[0].User.ID, convs[1].User.ID, convs[2].User.ID)
	}
}

func TestDeriveNormalizesMixedIDForms(t *testing.T) {
	o := primitive.NewObjectID()
	m := msgmodel.Message{
		ID:        primitive.NewObjectID(),
		Sender:    o, // 历史数据：ObjectId 形态
		Receiver:  "me",
		Content:   "legacy",
		CreatedAt: time.Now(),
	}
	convs := Derive("me", []msgmodel.Message{m}, []string{o.Hex()})
	if len(convs) != 1 || convs[0].User.ID != o.Hex() {
		t.Fatalf("ObjectId-typed sender should group under its hex form: %+v", convs)
	}
}
