package binance

import "testing"

// Vector from the Binance API documentation's signed-endpoint example. The
// exchange recomputes this digest server-side, so any deviation here breaks
// every authenticated call.
const (
	docsSecret  = "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j"
	docsPayload = "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	docsDigest  = "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71"
)

func TestSignMatchesDocumentedVector(t *testing.T) {
	got := Sign(docsSecret, docsPayload)
	if got != docsDigest {
		t.Errorf("Sign produced %s, expected the documented digest %s.", got, docsDigest)
	}
}

func TestSignIsDeterministic(t *testing.T) {
	first := Sign(docsSecret, docsPayload)
	second := Sign(docsSecret, docsPayload)
	if first != second {
		t.Errorf("Sign is not deterministic: %s vs %s.", first, second)
	}
}

func TestSignChangesWithPayload(t *testing.T) {
	base := Sign(docsSecret, docsPayload)
	flipped := Sign(docsSecret, docsPayload[:len(docsPayload)-1]+"8")
	if base == flipped {
		t.Error("Changing one byte of the payload did not change the digest.")
	}
}

func TestSignChangesWithSecret(t *testing.T) {
	if Sign(docsSecret, docsPayload) == Sign("other-secret", docsPayload) {
		t.Error("Different secrets produced the same digest.")
	}
}
