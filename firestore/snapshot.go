package firestore

import (
	"fmt"
	"time"

	fs "cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DocumentSnapshot is a decoded document. A document that does not exist has
// Exists=false and a zero Data.
type DocumentSnapshot[T any] struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	Exists     bool      `json:"exists"`
	Data       T         `json:"data"`
	CreateTime time.Time `json:"createTime"`
	UpdateTime time.Time `json:"updateTime"`
	ReadTime   time.Time `json:"readTime"`
}

type ChangeKind int

const (
	Added ChangeKind = iota
	Removed
	Modified
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Modified:
		return "modified"
	default:
		return "unknown"
	}
}

// DocumentChange is one entry of a query snapshot's change list.
// OldIndex is -1 for Added, NewIndex is -1 for Removed.
type DocumentChange[T any] struct {
	Kind     ChangeKind          `json:"kind"`
	Doc      DocumentSnapshot[T] `json:"doc"`
	OldIndex int                 `json:"oldIndex"`
	NewIndex int                 `json:"newIndex"`
}

// QuerySnapshot is the result set of a query. Changes is empty for one-shot
// reads.
type QuerySnapshot[T any] struct {
	Docs     []DocumentSnapshot[T] `json:"docs"`
	Changes  []DocumentChange[T]   `json:"changes,omitempty"`
	Size     int                   `json:"size"`
	ReadTime time.Time             `json:"readTime"`
}

// documentResult turns the outcome of a document read into a snapshot.
// NotFound is not an error: it yields Exists=false.
func documentResult[T any](ref *fs.DocumentRef, snap *fs.DocumentSnapshot, err error) (DocumentSnapshot[T], error) {
	if err != nil && status.Code(err) != codes.NotFound {
		return DocumentSnapshot[T]{}, err
	}
	return fromDocument[T](ref, snap)
}

func fromDocument[T any](ref *fs.DocumentRef, snap *fs.DocumentSnapshot) (DocumentSnapshot[T], error) {
	var out DocumentSnapshot[T]
	if snap != nil && snap.Ref != nil {
		ref = snap.Ref
	}
	if ref != nil {
		out.ID, out.Path = ref.ID, ref.Path
	}
	if snap == nil {
		return out, nil
	}
	out.ReadTime = snap.ReadTime
	if !snap.Exists() {
		return out, nil
	}
	out.Exists = true
	out.CreateTime = snap.CreateTime
	out.UpdateTime = snap.UpdateTime
	if err := snap.DataTo(&out.Data); err != nil {
		return out, fmt.Errorf("firestore: decode %s: %w", out.Path, err)
	}
	return out, nil
}

func fromDocuments[T any](snaps []*fs.DocumentSnapshot) ([]DocumentSnapshot[T], error) {
	out := make([]DocumentSnapshot[T], 0, len(snaps))
	for _, s := range snaps {
		d, err := fromDocument[T](nil, s)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func fromChanges[T any](changes []fs.DocumentChange) ([]DocumentChange[T], error) {
	if len(changes) == 0 {
		return nil, nil
	}
	out := make([]DocumentChange[T], 0, len(changes))
	for _, ch := range changes {
		d, err := fromDocument[T](nil, ch.Doc)
		if err != nil {
			return nil, err
		}
		out = append(out, DocumentChange[T]{
			Kind:     changeKind(ch.Kind),
			Doc:      d,
			OldIndex: ch.OldIndex,
			NewIndex: ch.NewIndex,
		})
	}
	return out, nil
}

func changeKind(k fs.DocumentChangeKind) ChangeKind {
	switch k {
	case fs.DocumentRemoved:
		return Removed
	case fs.DocumentModified:
		return Modified
	default:
		return Added
	}
}
