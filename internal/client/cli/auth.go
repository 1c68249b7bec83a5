package cli

import (
	"context"
	"fmt"
)

// Connect unlocks the keystore wallet and binds its first account to the
// session. Prints the resulting address, chain, and derived DID.
func (a *App) Connect(ctx context.Context) error {
	binding, err := a.auth.Connect(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Connected: %s (chain %d)\n", binding.Address, binding.ChainID)
	fmt.Printf("DID: %s\n", binding.DecentralizedID)
	if binding.ChainID != a.config.ExpectedChainID {
		fmt.Printf("Warning: connected to chain %d, expected %d\n", binding.ChainID, a.config.ExpectedChainID)
	}
	return nil
}

// Login runs the full challenge/response flow: connect if needed, request a
// challenge, show it, sign it with the wallet, and submit for verification.
func (a *App) Login(ctx context.Context) error {
	if a.auth.Binding().Address == "" {
		if err := a.Connect(ctx); err != nil {
			return err
		}
	}

	ch, err := a.auth.RequestChallenge(ctx)
	if err != nil {
		return err
	}

	fmt.Println("Signing challenge:")
	fmt.Println(ch.Message)

	if err := a.auth.SignAndVerify(ctx); err != nil {
		return err
	}

	b := a.auth.Binding()
	fmt.Printf("Verified as %s\n", b.DecentralizedID)
	return nil
}

// Status prints the current identity binding and, when anchoring is
// configured, the local anchor record.
func (a *App) Status(ctx context.Context) error {
	b := a.auth.Binding()
	if b.Address == "" {
		fmt.Println("Not connected")
		return nil
	}

	fmt.Printf("Address: %s\n", b.Address)
	fmt.Printf("Chain:   %d\n", b.ChainID)
	fmt.Printf("DID:     %s\n", b.DecentralizedID)
	fmt.Printf("Status:  %s\n", b.VerificationStatus)
	if b.VerifiedAt != nil {
		fmt.Printf("Verified at: %s\n", b.VerifiedAt.Format("2006-01-02 15:04:05 MST"))
	}

	if a.anchor == nil {
		return nil
	}
	record, err := a.anchor.Record(ctx, b.Address, defaultDocumentClass)
	if err != nil {
		return err
	}
	if record == nil {
		fmt.Println("No anchored document")
		return nil
	}
	fmt.Printf("Anchored: %s", record.ContentID)
	if record.Pending {
		fmt.Print(" (pending confirmation)")
	}
	fmt.Println()
	if record.GatewayURL != "" {
		fmt.Printf("Gateway:  %s\n", record.GatewayURL)
	}
	return nil
}

// Logout drops the server session and clears all local identity state.
func (a *App) Logout(ctx context.Context) error {
	if a.stopWatch != nil {
		a.stopWatch()
		a.stopWatch = nil
	}
	if err := a.auth.Disconnect(ctx); err != nil {
		return err
	}
	fmt.Println("Logged out")
	return nil
}
