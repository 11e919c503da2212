package message

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"testing"
	"time"

	"PPDirect/module/message/model"
	usermodel "PPDirect/module/user/model"
	"PPDirect/service/chat/wire"
	"PPDirect/tools/errs"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ===== 内存假实现 =====

type fakeRepo struct {
	msgs        []model.Message
	failInserts int // 前 N 次 Insert 返回存储不可用
}

func (r *fakeRepo) Insert(_ context.Context, m *model.Message) error {
	if r.failInserts > 0 {
		r.failInserts--
		return errs.ErrStoreUnavailable.WrapMsg("simulated outage")
	}
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	r.msgs = append(r.msgs, *m)
	return nil
}

func (r *fakeRepo) FindBetween(_ context.Context, a, b string) ([]model.Message, error) {
	var out []model.Message
	for _, m := range r.msgs {
		if m.Between(a, b) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeRepo) FindForUser(_ context.Context, userID string) ([]model.Message, error) {
	var out []model.Message
	for _, m := range r.msgs {
		if m.SenderID() == userID || m.ReceiverID() == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeRepo) MarkRead(_ context.Context, senderID, receiverID string) (int64, error) {
	var n int64
	now := time.Now()
	for i := range r.msgs {
		m := &r.msgs[i]
		if m.SenderID() == senderID && m.ReceiverID() == receiverID && !m.Read {
			m.Read = true
			m.ReadAt = &now
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) CountUnread(_ context.Context, receiverID string) (int64, error) {
	var n int64
	for _, m := range r.msgs {
		if m.ReceiverID() == receiverID && !m.Read {
			n++
		}
	}
	return n, nil
}

type fakeFollows struct {
	pairs map[string]bool // "a|b" 有序键
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func (f *fakeFollows) IsMutualFollow(_ context.Context, a, b string) (bool, error) {
	return f.pairs[pairKey(a, b)], nil
}

type fakeUsers struct{}

func (fakeUsers) GetDisplaySummary(_ context.Context, id string) usermodel.Summary {
	return usermodel.Summary{ID: id, Username: "user-" + id}
}

type fakeSender struct {
	frames map[string][][]byte // userID -> 推过去的帧
}

func newFakeSender() *fakeSender { return &fakeSender{frames: make(map[string][][]byte)} }

func (s *fakeSender) BroadcastUser(userID string, data []byte) bool {
	s.frames[userID] = append(s.frames[userID], data)
	return true
}

func (s *fakeSender) typesFor(t *testing.T, userID string) []string {
	t.Helper()
	var out []string
	for _, raw := range s.frames[userID] {
		var f wire.Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("bad frame pushed: %v", err)
		}
		out = append(out, f.Type)
	}
	return out
}

func newTestService(repo *fakeRepo, mutualPairs ...[2]string) (*Service, *fakeSender) {
	follows := &fakeFollows{pairs: make(map[string]bool)}
	for _, p := range mutualPairs {
		follows.pairs[pairKey(p[0], p[1])] = true
	}
	sender := newFakeSender()
	return NewService(repo, follows, fakeUsers{}, sender, nil), sender
}

// ===== 用例 =====

func TestSendRequiresMutualFollow(t *testing.T) {
	repo := &fakeRepo{}
	svc, _ := newTestService(repo) // 没有任何互关
	_, err := svc.Send(context.Background(), "a", "b", "hello")
	if errs.Code(err) != errs.NotMutualFollowCode {
		t.Fatalf("want NotMutualFollowCode, got %v", err)
	}
	if len(repo.msgs) != 0 {
		t.Fatalf("rejected send must not persist anything")
	}
}

func TestSendValidation(t *testing.T) {
	repo := &fakeRepo{}
	svc, _ := newTestService(repo, [2]string{"a", "b"})

	if _, err := svc.Send(context.Background(), "a", "b", "   "); errs.Code(err) != errs.MessageEmptyCode {
		t.Fatalf("blank content: want MessageEmptyCode, got %v", err)
	}
	long := strings.Repeat("x", model.MaxContentLength+1)
	if _, err := svc.Send(context.Background(), "a", "b", long); errs.Code(err) != errs.MessageTooLongCode {
		t.Fatalf("oversized content: want MessageTooLongCode, got %v", err)
	}
	if _, err := svc.Send(context.Background(), "a", "a", "self"); errs.Code(err) != errs.ValidationErrorCode {
		t.Fatalf("self-send: want ValidationErrorCode, got %v", err)
	}
	if len(repo.msgs) != 0 {
		t.Fatalf("no validation failure may persist a message")
	}
}

func TestSendThenListBetween(t *testing.T) {
	repo := &fakeRepo{}
	svc, sender := newTestService(repo, [2]string{"a", "b"})

	view, err := svc.Send(context.Background(), "a", "b", "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if view.Sender.ID != "a" || view.Receiver.ID != "b" || view.Content != "hello" {
		t.Fatalf("view = %+v", view)
	}
	if view.Sender.Username != "user-a" {
		t.Fatalf("view must be hydrated with display summaries")
	}

	// 双方、两个方向都立刻可见
	for _, pair := range [][2]string{{"a", "b"}, {"b", "a"}} {
		got, err := svc.ListBetween(context.Background(), pair[0], pair[1])
		if err != nil {
			t.Fatalf("list %v: %v", pair, err)
		}
		if len(got) != 1 || got[0].Content != "hello" {
			t.Fatalf("list %v = %+v", pair, got)
		}
	}

	// 接收方收 new-message，发送方收 message-sent
	if types := sender.typesFor(t, "b"); len(types) == 0 || types[0] != wire.TypeNewMessage {
		t.Fatalf("receiver frames = %v", types)
	}
	if types := sender.typesFor(t, "a"); len(types) == 0 || types[0] != wire.TypeMessageSent {
		t.Fatalf("sender frames = %v", types)
	}
}

func TestListBetweenMarksReadIdempotent(t *testing.T) {
	repo := &fakeRepo{}
	svc, sender := newTestService(repo, [2]string{"a", "b"})

	if _, err := svc.Send(context.Background(), "a", "b", "one"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := svc.Send(context.Background(), "a", "b", "two"); err != nil {
		t.Fatalf("send: %v", err)
	}

	// b 拉取历史：a 发来的未读全部置已读
	got, err := svc.ListBetween(context.Background(), "b", "a")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, v := range got {
		if v.Receiver.ID == "b" && !v.Read {
			t.Fatalf("fetched message should be returned as read: %+v", v)
		}
	}
	n, err := repo.CountUnread(context.Background(), "b")
	if err != nil || n != 0 {
		t.Fatalf("unread after fetch = %d (%v)", n, err)
	}

	// 第二次拉取不再产生新的已读回执（幂等）
	receipts := 0
	for _, typ := range sender.typesFor(t, "a") {
		if typ == wire.TypeMessagesRead {
			receipts++
		}
	}
	if receipts != 1 {
		t.Fatalf("want exactly 1 read receipt after first fetch, got %d", receipts)
	}
	if _, err := svc.ListBetween(context.Background(), "b", "a"); err != nil {
		t.Fatalf("second list: %v", err)
	}
	receipts = 0
	for _, typ := range sender.typesFor(t, "a") {
		if typ == wire.TypeMessagesRead {
			receipts++
		}
	}
	if receipts != 1 {
		t.Fatalf("re-fetch must not emit another receipt, got %d", receipts)
	}
}

func TestHistorySurvivesUnfollow(t *testing.T) {
	repo := &fakeRepo{}
	follows := &fakeFollows{pairs: map[string]bool{pairKey("a", "b"): true}}
	sender := newFakeSender()
	svc := NewService(repo, follows, fakeUsers{}, sender, nil)

	if _, err := svc.Send(context.Background(), "a", "b", "before unfollow"); err != nil {
		t.Fatalf("send: %v", err)
	}

	// 解除互关：新消息发不出去，但历史仍可直查
	follows.pairs = map[string]bool{}
	if _, err := svc.Send(context.Background(), "a", "b", "after"); errs.Code(err) != errs.NotMutualFollowCode {
		t.Fatalf("want gate after unfollow, got %v", err)
	}
	got, err := svc.ListBetween(context.Background(), "a", "b")
	if err != nil {
		t.Fatalf("list after unfollow: %v", err)
	}
	if len(got) != 1 || got[0].Content != "before unfollow" {
		t.Fatalf("history must remain retrievable: %+v", got)
	}
}

func TestUnreadCount(t *testing.T) {
	repo := &fakeRepo{}
	svc, _ := newTestService(repo, [2]string{"a", "c"}, [2]string{"b", "c"})

	for i := 0; i < 3; i++ {
		if _, err := svc.Send(context.Background(), "a", "c", "from a"); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := svc.Send(context.Background(), "b", "c", "from b"); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	n, err := svc.UnreadCount(context.Background(), "c")
	if err != nil || n != 5 {
		t.Fatalf("unread = %d (%v), want 5", n, err)
	}

	if _, err := svc.MarkRead(context.Background(), "a", "c"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	n, err = svc.UnreadCount(context.Background(), "c")
	if err != nil || n != 2 {
		t.Fatalf("unread after marking a's = %d (%v), want 2", n, err)
	}
}

func TestSendRetriesTransientInsert(t *testing.T) {
	repo := &fakeRepo{failInserts: 1}
	svc, _ := newTestService(repo, [2]string{"a", "b"})

	if _, err := svc.Send(context.Background(), "a", "b", "retry me"); err != nil {
		t.Fatalf("one transient failure should be retried: %v", err)
	}
	if len(repo.msgs) != 1 {
		t.Fatalf("message should be persisted exactly once, got %d", len(repo.msgs))
	}
}

func TestSendSurfacesPersistentFailure(t *testing.T) {
	repo := &fakeRepo{failInserts: 10}
	svc, sender := newTestService(repo, [2]string{"a", "b"})

	_, err := svc.Send(context.Background(), "a", "b", "doomed")
	if errs.Code(err) != errs.StoreUnavailableCode {
		t.Fatalf("persistent outage must surface, got %v", err)
	}
	if len(sender.frames) != 0 {
		t.Fatalf("failed send must not push any frames")
	}
}

func TestTypingDroppedWhenNotMutual(t *testing.T) {
	repo := &fakeRepo{}
	svc, sender := newTestService(repo) // 无互关
	svc.Typing(context.Background(), "a", "b", true)
	if len(sender.frames) != 0 {
		t.Fatalf("typing to non-mutual must be silently dropped")
	}

	svc2, sender2 := newTestService(repo, [2]string{"a", "b"})
	svc2.Typing(context.Background(), "a", "b", true)
	if types := sender2.typesFor(t, "b"); len(types) != 1 || types[0] != wire.TypeTyping {
		t.Fatalf("mutual typing should relay, frames = %v", types)
	}
}
