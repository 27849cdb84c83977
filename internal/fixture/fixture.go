package fixture

import (
	"embed"
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	xerrors "SignalProof-Chain/internal/errors"
	"SignalProof-Chain/internal/proofs"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("fixtures").Funcs(template.FuncMap{
	"node": node,
}).ParseFS(templateFS, "templates/*.tmpl"))

// node renders a proof node as Solidity hex literal content: the provider's
// bytes, hex encoded, without the 0x prefix.
func node(b hexutil.Bytes) string {
	return strings.TrimPrefix(hexutil.Encode(b), "0x")
}

// Signal describes a single signal proof fixture.
type Signal struct {
	SignalService common.Address
	Sender        common.Address
	Signal        common.Hash
	Proof         proofs.SignalProof
}

// RenderSignal writes the Solidity fixture for one signal proof.
func RenderSignal(w io.Writer, f Signal) error {
	if f.Proof.Account != (common.Address{}) && f.Proof.Account != f.SignalService {
		return xerrors.New(xerrors.CodeInvalidInput,
			fmt.Sprintf("proof account %s is not the signal service %s", f.Proof.Account.Hex(), f.SignalService.Hex()),
			xerrors.WithField("signal_service"))
	}
	if len(f.Proof.AccountProof) == 0 {
		return xerrors.New(xerrors.CodeInvalidInput, "proof has no account nodes", xerrors.WithField("account_proof"))
	}
	return templates.ExecuteTemplate(w, "signal_proof.sol.tmpl", f)
}
