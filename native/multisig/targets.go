package multisig

import (
	"encoding/hex"
	"math/big"
)

// Target constructors produce the canonical byte strings identifying gated
// administrative operations. Parameters are folded into the target so an
// approval covers exactly one concrete change.

func AddSignerTarget(signer [20]byte) []byte {
	return []byte("multisig/addSigner/" + hex.EncodeToString(signer[:]))
}

func RemoveSignerTarget(signer [20]byte) []byte {
	return []byte("multisig/removeSigner/" + hex.EncodeToString(signer[:]))
}

func CreatePoolTarget() []byte {
	return []byte("lend/createPool")
}

func SetFeesTarget(lendFee, borrowFee *big.Int) []byte {
	return []byte("lend/setFees/" + rateString(lendFee) + "/" + rateString(borrowFee))
}

func SetFeeRecipientTarget(recipient [20]byte) []byte {
	return []byte("lend/setFeeRecipient/" + hex.EncodeToString(recipient[:]))
}

func SetMinContributionTarget(amount *big.Int) []byte {
	return []byte("lend/setMinContribution/" + rateString(amount))
}

func SetSwapExecutorTarget() []byte {
	return []byte("lend/setSwapExecutor")
}

func PauseTarget() []byte {
	return []byte("lend/pauseAll")
}

func UnpauseTarget() []byte {
	return []byte("lend/unpauseAll")
}

func SetFeederTarget(feeder [20]byte, add bool) []byte {
	op := "oracle/removeFeeder/"
	if add {
		op = "oracle/addFeeder/"
	}
	return []byte(op + hex.EncodeToString(feeder[:]))
}

func rateString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
