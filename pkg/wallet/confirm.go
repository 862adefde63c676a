package wallet

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"near-intents/pkg/intent"
	"near-intents/pkg/signer"
)

// Confirming asks the terminal user before every signature. Answering
// anything but yes returns a nil result, which signer treats as a decline.
type Confirming struct {
	inner  signer.Wallet
	reader *bufio.Reader
	out    io.Writer
}

func NewConfirming(inner signer.Wallet, in io.Reader, out io.Writer) *Confirming {
	return &Confirming{inner: inner, reader: bufio.NewReader(in), out: out}
}

func (c *Confirming) Identity() intent.Identity {
	return c.inner.Identity()
}

func (c *Confirming) SignMessage(ctx context.Context, msg intent.WalletMessage) (*intent.SignatureResult, error) {
	fmt.Fprintf(c.out, "\n%s\n", color.CyanString("Message to sign (%s):", msg.Standard))
	fmt.Fprintf(c.out, "  %s\n", msg.Bytes)
	fmt.Fprint(c.out, color.YellowString("Sign as %s? [y/N]: ", c.inner.Identity().SignerID))

	answer, err := c.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return c.inner.SignMessage(ctx, msg)
	default:
		return nil, nil
	}
}
