// Package bond persists bonding keys to a JSON file. It implements the
// external bond-store collaborator PeerCache notifies when a peer
// bonds; on startup its records are fed back through AddBondedPeer.
package bond

import (
	"encoding/hex"
	"io/ioutil"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/corvidlabs/bthost"
	"github.com/corvidlabs/bthost/gap"
)

// Store is the persistence contract consumed by the startup restore
// path and by the cache's bonded notification.
type Store interface {
	Save(gap.BondData) error
	LoadAll() ([]gap.BondData, error)
	Delete(addr bthost.DeviceAddr) error
}

type keyRecord struct {
	Value             string `json:"value"`
	Authenticated     bool   `json:"authenticated,omitempty"`
	SecureConnections bool   `json:"secure_connections,omitempty"`
	EncryptionKeySize uint8  `json:"encryption_key_size,omitempty"`
}

type ltkRecord struct {
	keyRecord
	EDiv uint16 `json:"ediv"`
	Rand uint64 `json:"rand"`
}

type leRecord struct {
	IdentityAddress     string     `json:"identity_address,omitempty"`
	IdentityAddressKind string     `json:"identity_address_kind,omitempty"`
	PeerLTK             *ltkRecord `json:"peer_ltk,omitempty"`
	LocalLTK            *ltkRecord `json:"local_ltk,omitempty"`
	IRK                 *keyRecord `json:"irk,omitempty"`
	CSRK                *keyRecord `json:"csrk,omitempty"`
}

type brEdrRecord struct {
	LinkKey keyRecord `json:"link_key"`
}

// record is one serialized bond, keyed in the file by the MAC string.
type record struct {
	AddressKind string       `json:"address_kind"`
	Name        string       `json:"name,omitempty"`
	LE          *leRecord    `json:"le,omitempty"`
	BrEdr       *brEdrRecord `json:"bredr,omitempty"`
}

type fileStore struct {
	filename string
	lock     sync.Mutex
}

func NewFileStore(filename string) Store {
	return &fileStore{filename: filename}
}

func (fs *fileStore) Save(bd gap.BondData) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	records, err := fs.loadExisting()
	if err != nil {
		return err
	}
	rec, err := toRecord(bd)
	if err != nil {
		return err
	}
	records[bd.Address.MACString()] = rec
	return fs.storeRecords(records)
}

func (fs *fileStore) LoadAll() ([]gap.BondData, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	records, err := fs.loadExisting()
	if err != nil {
		return nil, err
	}
	var out []gap.BondData
	for addrStr, rec := range records {
		bd, err := fromRecord(addrStr, rec)
		if err != nil {
			return nil, errors.Wrapf(err, "bond record %s", addrStr)
		}
		out = append(out, bd)
	}
	return out, nil
}

func (fs *fileStore) Delete(addr bthost.DeviceAddr) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	records, err := fs.loadExisting()
	if err != nil {
		return err
	}
	if _, ok := records[addr.MACString()]; !ok {
		return nil
	}
	delete(records, addr.MACString())
	return fs.storeRecords(records)
}

func (fs *fileStore) loadExisting() (map[string]record, error) {
	_, err := os.Stat(fs.filename)
	if os.IsNotExist(err) {
		return map[string]record{}, nil
	}

	in, err := ioutil.ReadFile(fs.filename)
	if err != nil {
		return nil, err
	}

	var records map[string]record
	if err := jsoniter.Unmarshal(in, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (fs *fileStore) storeRecords(records map[string]record) error {
	out, err := jsoniter.Marshal(records)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(fs.filename, out, 0600)
}

func toRecord(bd gap.BondData) (record, error) {
	rec := record{AddressKind: bd.Address.Kind.String(), Name: bd.Name}
	if le := bd.LE; le != nil {
		lr := &leRecord{
			PeerLTK:  encodeLTK(le.PeerLTK),
			LocalLTK: encodeLTK(le.LocalLTK),
			IRK:      encodeKey(le.IRK),
			CSRK:     encodeKey(le.CSRK),
		}
		if le.IdentityAddress != nil {
			lr.IdentityAddress = le.IdentityAddress.MACString()
			lr.IdentityAddressKind = le.IdentityAddress.Kind.String()
		}
		rec.LE = lr
	}
	if be := bd.BrEdr; be != nil {
		rec.BrEdr = &brEdrRecord{LinkKey: *encodeKey(&be.LinkKey)}
	}
	return rec, nil
}

func fromRecord(addrStr string, rec record) (gap.BondData, error) {
	kind, err := bthost.ParseAddrKind(rec.AddressKind)
	if err != nil {
		return gap.BondData{}, err
	}
	addr, err := bthost.ParseAddr(kind, addrStr)
	if err != nil {
		return gap.BondData{}, err
	}
	bd := gap.BondData{Address: addr, Name: rec.Name}
	if lr := rec.LE; lr != nil {
		le := &gap.LowEnergyBondData{}
		if lr.IdentityAddress != "" {
			idKind, err := bthost.ParseAddrKind(lr.IdentityAddressKind)
			if err != nil {
				return gap.BondData{}, err
			}
			id, err := bthost.ParseAddr(idKind, lr.IdentityAddress)
			if err != nil {
				return gap.BondData{}, err
			}
			le.IdentityAddress = &id
		}
		if le.PeerLTK, err = decodeLTK(lr.PeerLTK); err != nil {
			return gap.BondData{}, err
		}
		if le.LocalLTK, err = decodeLTK(lr.LocalLTK); err != nil {
			return gap.BondData{}, err
		}
		if le.IRK, err = decodeKey(lr.IRK); err != nil {
			return gap.BondData{}, err
		}
		if le.CSRK, err = decodeKey(lr.CSRK); err != nil {
			return gap.BondData{}, err
		}
		bd.LE = le
	}
	if br := rec.BrEdr; br != nil {
		lk, err := decodeKey(&br.LinkKey)
		if err != nil {
			return gap.BondData{}, err
		}
		bd.BrEdr = &gap.BrEdrBondData{LinkKey: *lk}
	}
	return bd, nil
}

func encodeKey(k *gap.Key) *keyRecord {
	if k == nil {
		return nil
	}
	return &keyRecord{
		Value:             hex.EncodeToString(k.Value[:]),
		Authenticated:     k.Security.Authenticated,
		SecureConnections: k.Security.SecureConnections,
		EncryptionKeySize: k.Security.EncryptionKeySize,
	}
}

func decodeKey(r *keyRecord) (*gap.Key, error) {
	if r == nil {
		return nil, nil
	}
	raw, err := hex.DecodeString(r.Value)
	if err != nil {
		return nil, err
	}
	if len(raw) != 16 {
		return nil, errors.Errorf("key is %d bytes, want 16", len(raw))
	}
	k := &gap.Key{Security: gap.SecurityProperties{
		Authenticated:     r.Authenticated,
		SecureConnections: r.SecureConnections,
		EncryptionKeySize: r.EncryptionKeySize,
	}}
	copy(k.Value[:], raw)
	return k, nil
}

func encodeLTK(l *gap.LTK) *ltkRecord {
	if l == nil {
		return nil
	}
	return &ltkRecord{keyRecord: *encodeKey(&l.Key), EDiv: l.EDiv, Rand: l.Rand}
}

func decodeLTK(r *ltkRecord) (*gap.LTK, error) {
	if r == nil {
		return nil, nil
	}
	k, err := decodeKey(&r.keyRecord)
	if err != nil {
		return nil, err
	}
	return &gap.LTK{Key: *k, EDiv: r.EDiv, Rand: r.Rand}, nil
}
