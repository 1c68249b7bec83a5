package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/akarpov91/chainanchor/internal/common"
)

// parseAttachArgs splits "attach" arguments into the file path, the document
// class, and the encryption flag. Usage: attach <file> [class] [-e].
func parseAttachArgs(args []string) (file, class string, encrypt bool, err error) {
	class = defaultDocumentClass
	var positional []string
	for _, arg := range args {
		if arg == "-e" {
			encrypt = true
			continue
		}
		positional = append(positional, arg)
	}
	if len(positional) == 0 {
		return "", "", false, fmt.Errorf("usage: attach <file> [class] [-e]")
	}
	file = positional[0]
	if len(positional) > 1 {
		class = positional[1]
	}
	return file, class, encrypt, nil
}

// Attach uploads a file and anchors its content id on-chain under the
// connected address. With -e the file is encrypted under the wallet key
// before upload; the wallet will ask for one extra signature.
func (a *App) Attach(ctx context.Context, args []string) error {
	if a.anchor == nil {
		return common.ErrRegistryNotConfigured
	}
	b := a.auth.Binding()
	if b.Address == "" {
		return common.ErrNoAccount
	}

	file, class, encrypt, err := parseAttachArgs(args)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	if encrypt {
		fmt.Println("The wallet will ask for a signature to derive the encryption key.")
	}
	fmt.Println("Submitting attach transaction...")

	record, err := a.anchor.Attach(ctx, b.Address, class, data, filepath.Base(file), encrypt)
	if err != nil {
		if record != nil && record.Pending {
			fmt.Printf("Transaction %s not confirmed yet; run 'reconcile' later\n", record.TransactionHash)
		}
		return err
	}

	fmt.Printf("Anchored %s\n", record.ContentID)
	fmt.Printf("Transaction: %s\n", record.TransactionHash)
	if record.GatewayURL != "" {
		fmt.Printf("Gateway: %s\n", record.GatewayURL)
	}
	return nil
}

// Fetch downloads the anchored document (decrypting it when needed) and
// writes it to a file. Usage: fetch [class] [output]; the output defaults to
// the document class name.
func (a *App) Fetch(ctx context.Context, args []string) error {
	if a.anchor == nil {
		return common.ErrRegistryNotConfigured
	}
	b := a.auth.Binding()
	if b.Address == "" {
		return common.ErrNoAccount
	}

	class := defaultDocumentClass
	if len(args) > 0 {
		class = args[0]
	}
	out := class
	if len(args) > 1 {
		out = args[1]
	}

	data, record, err := a.anchor.Load(ctx, b.Address, class)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0o600); err != nil {
		return err
	}

	fmt.Printf("Fetched %s (%d bytes) to %s\n", record.ContentID, len(data), out)
	return nil
}

// Reconcile aligns the local anchor record with what the chain reports.
func (a *App) Reconcile(ctx context.Context) error {
	if a.anchor == nil {
		return common.ErrRegistryNotConfigured
	}
	b := a.auth.Binding()
	if b.Address == "" {
		return common.ErrNoAccount
	}

	record, err := a.anchor.Reconcile(ctx, b.Address, defaultDocumentClass)
	if err != nil {
		return err
	}
	if record == nil {
		fmt.Println("Nothing anchored on-chain")
		return nil
	}
	fmt.Printf("In sync: %s", record.ContentID)
	if record.Pending {
		fmt.Print(" (still pending)")
	}
	fmt.Println()
	return nil
}

// Watch follows ContentIdAttached events for the connected address and keeps
// the local record current until logout or exit.
func (a *App) Watch(ctx context.Context) error {
	if a.anchor == nil {
		return common.ErrRegistryNotConfigured
	}
	b := a.auth.Binding()
	if b.Address == "" {
		return common.ErrNoAccount
	}
	if a.stopWatch != nil {
		fmt.Println("Already watching")
		return nil
	}

	stop, err := a.anchor.Watch(ctx, b.Address, defaultDocumentClass)
	if err != nil {
		return err
	}
	a.stopWatch = stop
	fmt.Println("Watching for on-chain updates")
	return nil
}
