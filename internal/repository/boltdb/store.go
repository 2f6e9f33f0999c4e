// Package boltdb is an embedded single-file Store for deployments without a database server.
package boltdb

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"predictive-league/internal/models"
	"predictive-league/internal/repository"
)

var (
	bucketLeagues     = []byte("leagues")
	bucketLeagueSeq   = []byte("league_seq")
	bucketEntries     = []byte("entries")
	bucketProposals   = []byte("proposals")
	bucketChallenges  = []byte("challenges")
	bucketTransfers   = []byte("transfers")
	bucketUsers       = []byte("users")
	bucketUserWallets = []byte("user_wallets")
	bucketLoginNonces = []byte("login_nonces")

	allBuckets = [][]byte{
		bucketLeagues, bucketLeagueSeq, bucketEntries, bucketProposals,
		bucketChallenges, bucketTransfers, bucketUsers, bucketUserWallets,
		bucketLoginNonces,
	}
)

var boltOpts = &bolt.Options{
	// open timeout when file is locked
	Timeout: time.Second,
	// skip fsync+alloc on grow
	NoGrowSync:   true,
	FreelistType: bolt.FreelistMapType,
}

// Store keeps ledger state in a bbolt file. Records are JSON encoded.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database file and its buckets
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, boltOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) View(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(btx *bolt.Tx) error {
		return fn(&txn{btx: btx})
	})
}

func (s *Store) Update(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(btx *bolt.Tx) error {
		return fn(&txn{btx: btx})
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}

// leagueRecord carries the settlement fields hidden from the API encoding.
type leagueRecord struct {
	*models.League
	WinningWeight uint64 `json:"winning_weight"`
	ClaimedWeight uint64 `json:"claimed_weight"`
}

type entryRecord struct {
	*models.Entry
	Proof []byte `json:"proof"`
}

type txn struct {
	btx *bolt.Tx
}

func u64(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}

// compound builds "<league>\x00<suffix>" keys so one league's records are a contiguous prefix.
func compound(leagueID string, suffix []byte) []byte {
	key := make([]byte, 0, len(leagueID)+1+len(suffix))
	key = append(key, leagueID...)
	key = append(key, 0)
	return append(key, suffix...)
}

func prefix(leagueID string) []byte {
	return compound(leagueID, nil)
}

func (t *txn) put(bucket, key []byte, v interface{}) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return t.btx.Bucket(bucket).Put(key, buf)
}

func (t *txn) get(bucket, key []byte, v interface{}) error {
	buf := t.btx.Bucket(bucket).Get(key)
	if buf == nil {
		return repository.ErrNotFound
	}
	return json.Unmarshal(buf, v)
}

func (t *txn) CreateLeague(ctx context.Context, league *models.League) error {
	b := t.btx.Bucket(bucketLeagues)
	if b.Get([]byte(league.ID)) != nil {
		return fmt.Errorf("league %s already exists", league.ID)
	}
	now := time.Now()
	if league.CreatedAt.IsZero() {
		league.CreatedAt = now
	}
	league.UpdatedAt = now
	for i := range league.Options {
		league.Options[i].LeagueID = league.ID
	}
	if err := t.putLeague(league); err != nil {
		return err
	}
	return t.btx.Bucket(bucketLeagueSeq).Put(u64(league.Seq), []byte(league.ID))
}

func (t *txn) putLeague(league *models.League) error {
	return t.put(bucketLeagues, []byte(league.ID), &leagueRecord{
		League:        league,
		WinningWeight: league.WinningWeight,
		ClaimedWeight: league.ClaimedWeight,
	})
}

func (t *txn) GetLeague(ctx context.Context, id string) (*models.League, error) {
	rec := leagueRecord{League: &models.League{}}
	if err := t.get(bucketLeagues, []byte(id), &rec); err != nil {
		return nil, err
	}
	league := rec.League
	league.WinningWeight = rec.WinningWeight
	league.ClaimedWeight = rec.ClaimedWeight
	for i := range league.Options {
		league.Options[i].LeagueID = league.ID
	}
	sort.Slice(league.Options, func(i, j int) bool {
		return league.Options[i].OptionID < league.Options[j].OptionID
	})
	return league, nil
}

func (t *txn) UpdateLeague(ctx context.Context, league *models.League) error {
	stored, err := t.GetLeague(ctx, league.ID)
	if err != nil {
		return err
	}
	// pick counts are owned by AdjustPicks
	updated := *league
	updated.Options = stored.Options
	updated.UpdatedAt = time.Now()
	league.UpdatedAt = updated.UpdatedAt
	return t.putLeague(&updated)
}

// CountLeagues reads the highest sequence number; sequences are dense from 1.
func (t *txn) CountLeagues(ctx context.Context) (int64, error) {
	k, _ := t.btx.Bucket(bucketLeagueSeq).Cursor().Last()
	if k == nil {
		return 0, nil
	}
	return int64(binary.BigEndian.Uint64(k)), nil
}

func (t *txn) ListLeagueIDs(ctx context.Context, limit, offset int) ([]string, error) {
	ids := make([]string, 0)
	c := t.btx.Bucket(bucketLeagueSeq).Cursor()
	skipped := 0
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if skipped < offset {
			skipped++
			continue
		}
		ids = append(ids, string(v))
		if limit > 0 && len(ids) >= limit {
			break
		}
	}
	return ids, nil
}

func (t *txn) AdjustPicks(ctx context.Context, leagueID string, optionID uint8, delta int64) error {
	league, err := t.GetLeague(ctx, leagueID)
	if err != nil {
		return err
	}
	for i := range league.Options {
		if league.Options[i].OptionID != optionID {
			continue
		}
		league.Options[i].Picks = uint64(int64(league.Options[i].Picks) + delta)
		return t.putLeague(league)
	}
	return repository.ErrNotFound
}

func (t *txn) GetEntry(ctx context.Context, leagueID, participant string) (*models.Entry, error) {
	rec := entryRecord{Entry: &models.Entry{}}
	if err := t.get(bucketEntries, compound(leagueID, []byte(participant)), &rec); err != nil {
		return nil, err
	}
	rec.Entry.Proof = rec.Proof
	return rec.Entry, nil
}

func (t *txn) CreateEntry(ctx context.Context, entry *models.Entry) error {
	key := compound(entry.LeagueID, []byte(entry.Participant))
	if t.btx.Bucket(bucketEntries).Get(key) != nil {
		return fmt.Errorf("entry %s/%s already exists", entry.LeagueID, entry.Participant)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.UpdatedAt = entry.CreatedAt
	return t.put(bucketEntries, key, &entryRecord{Entry: entry, Proof: entry.Proof})
}

func (t *txn) UpdateEntry(ctx context.Context, entry *models.Entry) error {
	key := compound(entry.LeagueID, []byte(entry.Participant))
	if t.btx.Bucket(bucketEntries).Get(key) == nil {
		return repository.ErrNotFound
	}
	entry.UpdatedAt = time.Now()
	return t.put(bucketEntries, key, &entryRecord{Entry: entry, Proof: entry.Proof})
}

func (t *txn) ListEntriesByOption(ctx context.Context, leagueID string, optionID uint8) ([]models.Entry, error) {
	var entries []models.Entry
	p := prefix(leagueID)
	c := t.btx.Bucket(bucketEntries).Cursor()
	for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
		rec := entryRecord{Entry: &models.Entry{}}
		if err := json.Unmarshal(v, &rec); err != nil {
			return nil, err
		}
		if rec.Entry.OptionID != optionID {
			continue
		}
		rec.Entry.Proof = rec.Proof
		entries = append(entries, *rec.Entry)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

func (t *txn) GetProposal(ctx context.Context, leagueID string) (*models.Proposal, error) {
	var proposal models.Proposal
	if err := t.get(bucketProposals, []byte(leagueID), &proposal); err != nil {
		return nil, err
	}
	return &proposal, nil
}

func (t *txn) CreateProposal(ctx context.Context, proposal *models.Proposal) error {
	if t.btx.Bucket(bucketProposals).Get([]byte(proposal.LeagueID)) != nil {
		return fmt.Errorf("proposal for %s already exists", proposal.LeagueID)
	}
	return t.put(bucketProposals, []byte(proposal.LeagueID), proposal)
}

func (t *txn) UpdateProposal(ctx context.Context, proposal *models.Proposal) error {
	if t.btx.Bucket(bucketProposals).Get([]byte(proposal.LeagueID)) == nil {
		return repository.ErrNotFound
	}
	return t.put(bucketProposals, []byte(proposal.LeagueID), proposal)
}

func (t *txn) ListOpenProposals(ctx context.Context, limit int) ([]models.Proposal, error) {
	var proposals []models.Proposal
	err := t.btx.Bucket(bucketProposals).ForEach(func(k, v []byte) error {
		var p models.Proposal
		if err := json.Unmarshal(v, &p); err != nil {
			return err
		}
		if !p.Finalized {
			proposals = append(proposals, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(proposals, func(i, j int) bool {
		return proposals[i].ProposeTime.Before(proposals[j].ProposeTime)
	})
	if limit > 0 && len(proposals) > limit {
		proposals = proposals[:limit]
	}
	return proposals, nil
}

func (t *txn) CreateChallenge(ctx context.Context, challenge *models.Challenge) error {
	b := t.btx.Bucket(bucketChallenges)
	seq, err := b.NextSequence()
	if err != nil {
		return err
	}
	challenge.ID = seq
	return t.put(bucketChallenges, compound(challenge.LeagueID, u64(seq)), challenge)
}

func (t *txn) ListChallenges(ctx context.Context, leagueID string) ([]models.Challenge, error) {
	var challenges []models.Challenge
	p := prefix(leagueID)
	c := t.btx.Bucket(bucketChallenges).Cursor()
	for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
		var ch models.Challenge
		if err := json.Unmarshal(v, &ch); err != nil {
			return nil, err
		}
		challenges = append(challenges, ch)
	}
	return challenges, nil
}

func (t *txn) CreateTransfer(ctx context.Context, transfer *models.Transfer) error {
	b := t.btx.Bucket(bucketTransfers)
	seq, err := b.NextSequence()
	if err != nil {
		return err
	}
	transfer.Seq = seq
	if transfer.CreatedAt.IsZero() {
		transfer.CreatedAt = time.Now()
	}
	return t.put(bucketTransfers, compound(transfer.LeagueID, u64(seq)), transfer)
}

func (t *txn) ListTransfers(ctx context.Context, leagueID string) ([]models.Transfer, error) {
	var transfers []models.Transfer
	p := prefix(leagueID)
	c := t.btx.Bucket(bucketTransfers).Cursor()
	for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
		var tr models.Transfer
		if err := json.Unmarshal(v, &tr); err != nil {
			return nil, err
		}
		transfers = append(transfers, tr)
	}
	return transfers, nil
}

func (t *txn) GetUserByWallet(ctx context.Context, wallet string) (*models.User, error) {
	id := t.btx.Bucket(bucketUserWallets).Get([]byte(wallet))
	if id == nil {
		return nil, repository.ErrNotFound
	}
	var user models.User
	if err := t.get(bucketUsers, id, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (t *txn) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := t.get(bucketUsers, u64(uint64(id)), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (t *txn) CreateUser(ctx context.Context, user *models.User) error {
	wallets := t.btx.Bucket(bucketUserWallets)
	if wallets.Get([]byte(user.WalletAddress)) != nil {
		return fmt.Errorf("user %s already exists", user.WalletAddress)
	}
	seq, err := t.btx.Bucket(bucketUsers).NextSequence()
	if err != nil {
		return err
	}
	user.ID = uint(seq)
	now := time.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	if err := t.put(bucketUsers, u64(seq), user); err != nil {
		return err
	}
	return wallets.Put([]byte(user.WalletAddress), u64(seq))
}

func (t *txn) PutLoginNonce(ctx context.Context, nonce *models.LoginNonce) error {
	return t.put(bucketLoginNonces, []byte(nonce.WalletAddress), nonce)
}

func (t *txn) TakeLoginNonce(ctx context.Context, wallet string) (*models.LoginNonce, error) {
	var nonce models.LoginNonce
	if err := t.get(bucketLoginNonces, []byte(wallet), &nonce); err != nil {
		return nil, err
	}
	if err := t.btx.Bucket(bucketLoginNonces).Delete([]byte(wallet)); err != nil {
		return nil, err
	}
	return &nonce, nil
}
