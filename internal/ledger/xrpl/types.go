package xrpl

import "encoding/json"

// request is the rippled WebSocket API envelope. Command-specific fields
// ride alongside the id in a flat object, so requests are built as maps;
// this struct documents the common members.
type request map[string]any

// response is the common rippled reply envelope.
type response struct {
	ID           int64           `json:"id"`
	Type         string          `json:"type"`
	Status       string          `json:"status"`
	Result       json.RawMessage `json:"result"`
	Error        string          `json:"error"`
	ErrorMessage string          `json:"error_message"`
}

// accountInfoResult is the result payload of the account_info command.
type accountInfoResult struct {
	AccountData struct {
		Account  string `json:"Account"`
		Balance  string `json:"Balance"`
		Sequence uint32 `json:"Sequence"`
	} `json:"account_data"`
	LedgerIndex uint32 `json:"ledger_index"`
	Validated   bool   `json:"validated"`
}

// ledgerResult is the result payload of the ledger command.
type ledgerResult struct {
	LedgerIndex uint32 `json:"ledger_index"`
	Validated   bool   `json:"validated"`
}

// txJSON is the Payment transaction shape submitted to and returned by
// rippled.
type txJSON struct {
	TransactionType    string `json:"TransactionType"`
	Account            string `json:"Account,omitempty"`
	Destination        string `json:"Destination,omitempty"`
	Amount             string `json:"Amount,omitempty"`
	DestinationTag     uint32 `json:"DestinationTag,omitempty"`
	Fee                string `json:"Fee,omitempty"`
	Sequence           uint32 `json:"Sequence,omitempty"`
	LastLedgerSequence uint32 `json:"LastLedgerSequence,omitempty"`
	Flags              uint32 `json:"Flags,omitempty"`
	Hash               string `json:"hash,omitempty"`
}

// submitResult is the result payload of the submit command.
type submitResult struct {
	EngineResult        string `json:"engine_result"`
	EngineResultMessage string `json:"engine_result_message"`
	TxJSON              txJSON `json:"tx_json"`
}

// txMeta carries the final disposition of a validated transaction.
type txMeta struct {
	TransactionResult string `json:"TransactionResult"`
}

// txResult is the result payload of the tx (transaction lookup) command.
type txResult struct {
	Hash        string `json:"hash"`
	LedgerIndex uint32 `json:"ledger_index"`
	Validated   bool   `json:"validated"`
	Meta        txMeta `json:"meta"`
}

// streamTx is an asynchronous transaction notification pushed on the
// accounts subscription stream.
type streamTx struct {
	Type        string `json:"type"`
	Validated   bool   `json:"validated"`
	Transaction txJSON `json:"transaction"`
	Meta        txMeta `json:"meta"`
}

// tfFullyCanonicalSig forces canonical signatures on submitted payments.
const tfFullyCanonicalSig uint32 = 2147483648

// standardFee is the network fee attached to payout payments, in drops.
const standardFee = "12"
