// Package mongo implements the store interface for MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tarancss/broker/lib/store"
)

const database = "broker"

// Mongo implements a connection to a MongoDB database. NOTIFY transactions run in mongo sessions,
// so the deployment has to be a replica set.
type Mongo struct {
	c *mgo.Client
}

// MongoTx implements a store transaction row in MongoDB. Amounts travel as strings, never floats.
type MongoTx struct {
	TxID      string `bson:"txid"`
	BlockHash string `bson:"blockhash"`
	CoinType  int    `bson:"coinType"`
	TxType    int    `bson:"txType"`
	Confirms  uint64 `bson:"confirms"`
	Complete  bool   `bson:"complete"`
	Processed bool   `bson:"processed"`
	UserID    string `bson:"userId,omitempty"`
	Amount    string `bson:"amount,omitempty"`
}

// WalletTx converts a MongoTx to store.WalletTx type.
func (t MongoTx) WalletTx() (store.WalletTx, error) {
	wt := store.WalletTx{
		TxID: t.TxID, BlockHash: t.BlockHash, CoinType: t.CoinType, TxType: t.TxType,
		Confirms: t.Confirms, Complete: t.Complete, Processed: t.Processed, UserID: t.UserID,
	}
	if t.Amount != "" {
		var err error
		if wt.Amount, err = decimal.NewFromString(t.Amount); err != nil {
			return wt, fmt.Errorf("bad amount in tx document %s: %w", t.TxID, err)
		}
	}
	return wt, nil
}

// MongoBalance implements a store balance row in MongoDB.
type MongoBalance struct {
	UserID  string `bson:"userId"`
	Balance string `bson:"balance"`
}

// New returns a Mongo client connection to the specified MongoDB database uri.
func New(uri string) (*Mongo, error) {
	// get a client
	c, err := mgo.NewClient(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongo DB in %s: %w", uri, err)
	}
	// connect client
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd // 5 seconds timeout
	defer cancel()

	err = c.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("error connecting to mongo DB: %w", err)
	}

	m := &Mongo{c: c}
	if err = m.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("error creating mongo DB indexes: %w", err)
	}

	return m, nil
}

// ensureIndexes creates the uniqueness constraints the credit pipeline relies on.
func (m *Mongo) ensureIndexes(ctx context.Context) error {
	db := m.c.Database(database)
	unique := options.Index().SetUnique(true)

	idx := []struct {
		col  string
		keys bson.D
	}{
		{"tx", bson.D{{Key: "txid", Value: 1}, {Key: "txType", Value: 1}, {Key: "userId", Value: 1}}},
		{"job", bson.D{{Key: "job", Value: 1}}},
		{"addr", bson.D{{Key: "address", Value: 1}}},
		{"bal", bson.D{{Key: "userId", Value: 1}}},
		{"status", bson.D{{Key: "type", Value: 1}}},
	}
	for _, i := range idx {
		_, err := db.Collection(i.col).Indexes().CreateOne(ctx, mgo.IndexModel{Keys: i.keys, Options: unique})
		if err != nil {
			return err
		}
	}

	return nil
}

// CloseMongo will close a database connection. Must be called at termination time.
func (m *Mongo) CloseMongo() error {
	return m.c.Disconnect(context.Background())
}

// WithTxn runs fn inside a mongo session transaction. Concurrent NOTIFYs for the same txid write
// the same documents, so one of them aborts with a transient error and the driver re-runs fn,
// which gives the same per-txid serialization the SQL backend gets from its advisory lock.
func (m *Mongo) WithTxn(ctx context.Context, txid string, fn func(store.Txn) error) error {
	sess, err := m.c.StartSession()
	if err != nil {
		return fmt.Errorf("could not start mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mgo.SessionContext) (interface{}, error) {
		return nil, fn(&mgoTxn{ctx: sc, db: m.c.Database(database)})
	})

	return err
}

// UpsertStatus saves the heartbeat snapshot for st.Type, creating the row when absent.
func (m *Mongo) UpsertStatus(ctx context.Context, st store.WalletStatus) error {
	_, err := m.c.Database(database).Collection("status").UpdateOne(ctx,
		bson.M{"type": st.Type}, // filter
		bson.D{ // update
			{
				Key: "$set", Value: bson.D{
					{Key: "online", Value: st.Online},
					{Key: "synced", Value: st.Synced},
					{Key: "crawling", Value: st.Crawling},
					{Key: "blockheight", Value: st.BlockHeight},
					{Key: "blockhash", Value: st.BlockHash},
					{Key: "blocktime", Value: st.BlockTime},
					{Key: "updatedAt", Value: st.Updated},
				},
			},
		},
		options.Update().SetUpsert(true))

	return err
}

// GetStatus returns the latest heartbeat snapshot for the coin.
func (m *Mongo) GetStatus(ctx context.Context, coin string) (st store.WalletStatus, err error) {
	sr := m.c.Database(database).Collection("status").FindOne(ctx, bson.M{"type": coin})
	if err = sr.Decode(&st); errors.Is(err, mgo.ErrNoDocuments) {
		err = store.ErrDataNotFound
	}

	return st, err
}

// AddAddress saves an address to user mapping if the address does not already exist.
func (m *Mongo) AddAddress(ctx context.Context, a store.WalletAddress) error {
	_, err := m.c.Database(database).Collection("addr").InsertOne(ctx,
		bson.M{"address": a.Address, "userId": a.UserID})
	if mgo.IsDuplicateKeyError(err) {
		return nil
	}

	return err
}

// mgoTxn implements store.Txn inside a session context.
type mgoTxn struct {
	ctx mgo.SessionContext
	db  *mgo.Database
}

func (t *mgoTxn) GetTx(txid string) (store.WalletTx, error) {
	var mt MongoTx

	sr := t.db.Collection("tx").FindOne(t.ctx, bson.M{"txid": txid, "txType": store.TxObserved})
	if err := sr.Decode(&mt); err != nil {
		if errors.Is(err, mgo.ErrNoDocuments) {
			return store.WalletTx{}, store.ErrDataNotFound
		}

		return store.WalletTx{}, err
	}

	return mt.WalletTx()
}

func (t *mgoTxn) UpsertTxRow(wt store.WalletTx) error {
	_, err := t.db.Collection("tx").UpdateOne(t.ctx,
		bson.M{"txid": wt.TxID, "txType": store.TxObserved},
		bson.D{
			{
				Key: "$set", Value: bson.D{
					{Key: "blockhash", Value: wt.BlockHash},
					{Key: "coinType", Value: wt.CoinType},
					{Key: "confirms", Value: wt.Confirms},
					{Key: "complete", Value: wt.Complete},
					{Key: "processed", Value: wt.Processed},
				},
			},
		},
		options.Update().SetUpsert(true))

	return err
}

func (t *mgoTxn) GetJob(job string) (j store.WalletJob, err error) {
	sr := t.db.Collection("job").FindOne(t.ctx, bson.M{"job": job})
	if err = sr.Decode(&j); errors.Is(err, mgo.ErrNoDocuments) {
		err = store.ErrDataNotFound
	}

	return j, err
}

func (t *mgoTxn) InsertJob(j store.WalletJob) error {
	_, err := t.db.Collection("job").InsertOne(t.ctx, j)

	return err
}

func (t *mgoTxn) UpdateJob(j store.WalletJob) error {
	_, err := t.db.Collection("job").UpdateOne(t.ctx,
		bson.M{"job": j.Job},
		bson.D{
			{
				Key: "$set", Value: bson.D{
					{Key: "state", Value: j.State},
					{Key: "type", Value: j.Type},
					{Key: "userId", Value: j.UserID},
					{Key: "result", Value: j.Result},
				},
			},
		})

	return err
}

func (t *mgoTxn) FindAddress(address string) (a store.WalletAddress, err error) {
	sr := t.db.Collection("addr").FindOne(t.ctx, bson.M{"address": address})
	if err = sr.Decode(&a); errors.Is(err, mgo.ErrNoDocuments) {
		err = store.ErrAddrNotFound
	}

	return a, err
}

func (t *mgoTxn) InsertCreditRow(wt store.WalletTx) error {
	doc := MongoTx{
		TxID: wt.TxID, BlockHash: wt.BlockHash, CoinType: wt.CoinType, TxType: store.TxCredit,
		Confirms: wt.Confirms, Complete: wt.Complete, Processed: wt.Processed, UserID: wt.UserID,
		Amount: wt.Amount.String(),
	}

	_, err := t.db.Collection("tx").InsertOne(t.ctx, doc)
	if mgo.IsDuplicateKeyError(err) {
		return store.ErrDuplicateCredit
	}

	return err
}

func (t *mgoTxn) GetOrInitBalance(userID string) (store.WalletBalance, error) {
	var mb MongoBalance

	sr := t.db.Collection("bal").FindOne(t.ctx, bson.M{"userId": userID})

	err := sr.Decode(&mb)
	if errors.Is(err, mgo.ErrNoDocuments) { // if not found, do insert it!!
		if _, err = t.db.Collection("bal").InsertOne(t.ctx, bson.M{"userId": userID, "balance": "0"}); err != nil {
			return store.WalletBalance{}, fmt.Errorf("could not init balance in db: %w", err)
		}

		return store.WalletBalance{UserID: userID, Balance: decimal.Zero}, nil
	}

	if err != nil {
		return store.WalletBalance{}, err
	}

	bal, err := decimal.NewFromString(mb.Balance)
	if err != nil {
		return store.WalletBalance{}, fmt.Errorf("bad balance in document for user %s: %w", userID, err)
	}

	return store.WalletBalance{UserID: mb.UserID, Balance: bal}, nil
}

func (t *mgoTxn) AddToBalance(userID string, amount decimal.Decimal) error {
	b, err := t.GetOrInitBalance(userID)
	if err != nil {
		return err
	}

	_, err = t.db.Collection("bal").UpdateOne(t.ctx,
		bson.M{"userId": userID},
		bson.D{{Key: "$set", Value: bson.D{{Key: "balance", Value: b.Balance.Add(amount).String()}}}})

	return err
}
