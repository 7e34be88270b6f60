package imap

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/emersion/go-imap"
)

type storeCall struct {
	uid   uint32
	item  imap.StoreItem
	flags []string
}

type fakeMessage struct {
	raw   []byte
	flags []string
	date  time.Time
}

// fakeClient is an in-memory server. Every mailbox shares one UIDVALIDITY.
type fakeClient struct {
	mu        sync.Mutex
	validity  uint32
	boxes     map[string]map[uint32]*fakeMessage
	attrs     map[string][]string
	selected  string
	selects   int
	created   []string
	stores    []storeCall
	moved     map[uint32]string
	loggedOut bool
}

func newFakeClient(validity uint32) *fakeClient {
	return &fakeClient{
		validity: validity,
		boxes:    map[string]map[uint32]*fakeMessage{"INBOX": {}},
		attrs:    make(map[string][]string),
		moved:    make(map[uint32]string),
	}
}

// add stores a message received now in INBOX
func (f *fakeClient) add(uid uint32, raw string, flags ...string) {
	f.addTo("INBOX", uid, time.Now(), raw, flags...)
}

func (f *fakeClient) addTo(box string, uid uint32, date time.Time, raw string, flags ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.boxes[box] == nil {
		f.boxes[box] = make(map[uint32]*fakeMessage)
	}
	f.boxes[box][uid] = &fakeMessage{raw: []byte(raw), flags: flags, date: date}
}

func (f *fakeClient) addFolder(name string, attrs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.boxes[name] == nil {
		f.boxes[name] = make(map[uint32]*fakeMessage)
	}
	f.attrs[name] = attrs
}

func (f *fakeClient) flagsOf(box string, uid uint32) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := f.boxes[box][uid]; ok {
		return msg.flags
	}
	return nil
}

func (f *fakeClient) Select(name string, _ bool) (*imap.MailboxStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.boxes[name]; !ok {
		return nil, fmt.Errorf("no such mailbox %s", name)
	}
	f.selected = name
	f.selects++
	status := imap.NewMailboxStatus(name, nil)
	status.UidValidity = f.validity
	return status, nil
}

func (f *fakeClient) List(_, name string, ch chan *imap.MailboxInfo) error {
	defer close(ch)
	f.mu.Lock()
	var infos []*imap.MailboxInfo
	for box := range f.boxes {
		if name == "*" || box == name {
			infos = append(infos, &imap.MailboxInfo{Name: box, Delimiter: "/", Attributes: f.attrs[box]})
		}
	}
	f.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	for _, info := range infos {
		ch <- info
	}
	return nil
}

func (f *fakeClient) Create(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boxes[name] = make(map[uint32]*fakeMessage)
	f.created = append(f.created, name)
	return nil
}

func (f *fakeClient) UidSearch(criteria *imap.SearchCriteria) ([]uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	box := f.boxes[f.selected]
	var uids, all []uint32
	for uid, msg := range box {
		all = append(all, uid)
		if criteria.Uid != nil && uid < criteria.Uid.Set[0].Start {
			continue
		}
		if !criteria.Since.IsZero() && msg.date.Before(day(criteria.Since)) {
			continue
		}
		uids = append(uids, uid)
	}
	// "n:*" includes the highest uid even when it is below n
	if criteria.Uid != nil && len(uids) == 0 && len(all) > 0 {
		sort.Slice(all, func(i, j int) bool { return all[i] > all[j] })
		uids = append(uids, all[0])
	}
	return uids, nil
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (f *fakeClient) UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error {
	defer close(ch)
	f.mu.Lock()
	defer f.mu.Unlock()

	withBody := false
	for _, item := range items {
		if item != imap.FetchUid && item != imap.FetchFlags {
			withBody = true
		}
	}

	for uid, stored := range f.boxes[f.selected] {
		if !seqset.Contains(uid) {
			continue
		}
		msg := imap.NewMessage(uid, items)
		msg.Uid = uid
		msg.Flags = append([]string(nil), stored.flags...)
		if withBody {
			msg.Body = map[*imap.BodySectionName]imap.Literal{
				{}: bytes.NewBuffer(append([]byte(nil), stored.raw...)),
			}
		}
		ch <- msg
	}
	return nil
}

func (f *fakeClient) UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error {
	if ch != nil {
		defer close(ch)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var flags []string
	for _, v := range value.([]interface{}) {
		flags = append(flags, v.(string))
	}

	for uid, msg := range f.boxes[f.selected] {
		if !seqset.Contains(uid) {
			continue
		}
		f.stores = append(f.stores, storeCall{uid: uid, item: item, flags: flags})

		op, _, _ := imap.ParseFlagsOp(item)
		switch op {
		case imap.AddFlags:
			msg.flags = append(msg.flags, flags...)
		case imap.RemoveFlags:
			drop := make(map[string]bool, len(flags))
			for _, flag := range flags {
				drop[flag] = true
			}
			var kept []string
			for _, flag := range msg.flags {
				if !drop[flag] {
					kept = append(kept, flag)
				}
			}
			msg.flags = kept
		}
	}
	return nil
}

func (f *fakeClient) UidMove(seqset *imap.SeqSet, dest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	target, ok := f.boxes[dest]
	if !ok {
		return fmt.Errorf("no such mailbox %s", dest)
	}
	box := f.boxes[f.selected]
	for uid, msg := range box {
		if seqset.Contains(uid) {
			delete(box, uid)
			target[uid] = msg
			f.moved[uid] = dest
		}
	}
	return nil
}

func (f *fakeClient) Logout() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOut = true
	return nil
}
