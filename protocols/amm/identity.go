package amm

import (
	"crypto/sha256"
)

// AssetIDFor derives the id of the asset a contract issues under subID.
func AssetIDFor(contract ContractID, subID SubID) AssetID {
	h := sha256.New()
	h.Write(contract[:])
	h.Write(subID[:])
	return AssetID(h.Sum(nil))
}

// LPSubID is the sub-identifier under which the engine issues a pool's LP asset.
func LPSubID(id PoolID) SubID {
	var stable byte
	if id.Stable {
		stable = 1
	}
	h := sha256.New()
	h.Write(id.Asset0[:])
	h.Write(id.Asset1[:])
	h.Write([]byte{stable})
	return SubID(h.Sum(nil))
}

// LPAssetID derives the LP asset of a pool issued by the engine contract.
func LPAssetID(contract ContractID, id PoolID) AssetID {
	return AssetIDFor(contract, LPSubID(id))
}

// CustodyAccount is the ledger account holding a pool's reserves and escrowed
// LP units. It shares its bytes with the pool's LP asset id.
func CustodyAccount(contract ContractID, id PoolID) Identity {
	return Identity(LPAssetID(contract, id))
}
