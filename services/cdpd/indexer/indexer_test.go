package indexer

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"cdpchain/core/events"
	"cdpchain/crypto"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	return db
}

func TestIndexerRecordsAndQueriesByPosition(t *testing.T) {
	idx, err := New(setupTestDB(t), nil)
	require.NoError(t, err)

	owner := crypto.DeriveAddress([]byte("owner"))
	source := crypto.DeriveAddress([]byte("source"))
	target := crypto.DeriveAddress([]byte("target"))
	other := crypto.DeriveAddress([]byte("other"))

	idx.Emit(events.PositionOpened{Position: source, Owner: owner, Original: source, Collateral: "WETH", Price: big.NewInt(1), Limit: big.NewInt(1)})
	idx.Emit(events.ChallengeStarted{Index: 0, Challenger: other, Position: other, Size: big.NewInt(1), Price: big.NewInt(1)})
	idx.Emit(events.Roll{Owner: owner, Source: source, Target: target, Repaid: big.NewInt(1), Minted: big.NewInt(1)})
	require.Equal(t, uint64(3), idx.LastSeq())

	history, err := idx.ByPosition(context.Background(), source, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, events.TypePositionOpened, history[0].Type)
	require.Equal(t, owner.String(), history[0].Account)
	require.Equal(t, events.TypeRoll, history[1].Type)

	targeted, err := idx.ByPosition(context.Background(), target, 0)
	require.NoError(t, err)
	require.Len(t, targeted, 1)
	require.Equal(t, source.String(), targeted[0].Attributes["source"])

	challenges, err := idx.Query(context.Background(), Filter{Type: events.TypeChallengeStarted})
	require.NoError(t, err)
	require.Len(t, challenges, 1)
	require.Equal(t, other.String(), challenges[0].Account)
}

func TestIndexerResumesSequence(t *testing.T) {
	db := setupTestDB(t)
	idx, err := New(db, nil)
	require.NoError(t, err)
	addr := crypto.DeriveAddress([]byte("holder"))
	_, err = idx.Record(context.Background(), events.Transfer{Asset: "ZCHF", From: addr, To: addr, Amount: big.NewInt(5)})
	require.NoError(t, err)

	reopened, err := New(db, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1), reopened.LastSeq())
	record, err := reopened.Record(context.Background(), events.Transfer{Asset: "ZCHF", From: addr, To: addr, Amount: big.NewInt(6)})
	require.NoError(t, err)
	require.Equal(t, uint64(2), record.Seq)
}

func TestIndexerEachStreamsAfterCursor(t *testing.T) {
	idx, err := New(setupTestDB(t), nil)
	require.NoError(t, err)
	addr := crypto.DeriveAddress([]byte("holder"))
	for i := 0; i < 5; i++ {
		_, err := idx.Record(context.Background(), events.Transfer{Asset: "ZCHF", From: addr, To: addr, Amount: big.NewInt(int64(i + 1))})
		require.NoError(t, err)
	}
	var seqs []uint64
	require.NoError(t, idx.Each(context.Background(), 2, func(r EventRecord) error {
		seqs = append(seqs, r.Seq)
		return nil
	}))
	require.Equal(t, []uint64{3, 4, 5}, seqs)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	require.ErrorIs(t, err, ErrUnsupportedDriver)
}
