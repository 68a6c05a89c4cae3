package storage

import (
	"context"

	log "igstore/cloudlog"
	"igstore/collections"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore implements Store on a Cloud Firestore database.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore opens a Firestore client for projectID.
func NewFirestore(ctx context.Context, projectID string, opts ...option.ClientOption) (*Firestore, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		log.Printf("initiate Firestore client failed: %+v", err)
		return nil, err
	}
	return &Firestore{client: client}, nil
}

// NewFirestoreFromClient wraps an existing client, e.g. one produced by the Firebase App.
func NewFirestoreFromClient(client *firestore.Client) *Firestore {
	return &Firestore{client: client}
}

// Close performs cleanup for closing storage connections.
func (fs *Firestore) Close() error {
	return fs.client.Close()
}

// Get checks the error returned from docRef.Get and converts a codes.NotFound error into
// ErrNoDocument.
func (fs *Firestore) Get(ctx context.Context, collection, id string) (*Document, error) {
	snapshot, err := fs.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNoDocument
		}
		return nil, err
	}
	if !snapshot.Exists() {
		return nil, ErrNoDocument
	}
	return fs.toDocument(snapshot), nil
}

func (fs *Firestore) Query(ctx context.Context, collection string, filters []Filter, order *Order) ([]*Document, error) {
	query := fs.client.Collection(collection).Query
	for _, f := range filters {
		query = query.Where(f.Path, f.Op, fs.toNative(f.Value))
	}
	if order != nil {
		dir := firestore.Asc
		if order.Direction == Desc {
			dir = firestore.Desc
		}
		query = query.OrderBy(order.Path, dir)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()
	docs := []*Document{}
	for {
		snapshot, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			log.Printf("Query %s error: %+v", collection, err)
			return nil, err
		}
		docs = append(docs, fs.toDocument(snapshot))
	}
	return docs, nil
}

func (fs *Firestore) Set(ctx context.Context, collection, id string, data map[string]interface{}) error {
	_, err := fs.client.Collection(collection).Doc(id).Set(ctx, fs.toNativeMap(data))
	return err
}

func (fs *Firestore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	updates := make([]firestore.Update, 0, len(fields))
	for path, value := range fields {
		updates = append(updates, firestore.Update{
			Path:  path,
			Value: fs.toNative(value),
		})
	}
	_, err := fs.client.Collection(collection).Doc(id).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return ErrNoDocument
	}
	return err
}

func (fs *Firestore) Delete(ctx context.Context, collection, id string) error {
	_, err := fs.client.Collection(collection).Doc(id).Delete(ctx)
	return err
}

// Add generates a Doc with a random ID.
func (fs *Firestore) Add(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	docRef := fs.client.Collection(collection).NewDoc()
	if _, err := docRef.Create(ctx, fs.toNativeMap(data)); err != nil {
		return "", err
	}
	return docRef.ID, nil
}

func (fs *Firestore) toDocument(snapshot *firestore.DocumentSnapshot) *Document {
	data := snapshot.Data()
	for key, value := range data {
		if ref, ok := value.(*firestore.DocumentRef); ok && ref != nil {
			data[key] = collections.Ref{Collection: ref.Parent.ID, ID: ref.ID}
		}
	}
	return &Document{ID: snapshot.Ref.ID, Data: data}
}

func (fs *Firestore) toNative(value interface{}) interface{} {
	if ref, ok := isRef(value); ok {
		return fs.client.Collection(ref.Collection).Doc(ref.ID)
	}
	return value
}

func (fs *Firestore) toNativeMap(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for key, value := range data {
		out[key] = fs.toNative(value)
	}
	return out
}
