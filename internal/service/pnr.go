package service

import (
    "crypto/rand"
    "strconv"
    "strings"
    "time"
)

// PNRLength is the fixed length of a booking reference.
const PNRLength = 12

// pnrAlphabet has 32 symbols without 0/O and 1/I so references read
// back over the phone; 32 divides 256 so masking a byte is unbiased.
const pnrAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
    pnrTimeChars   = 6
    pnrRandomChars = PNRLength - pnrTimeChars
    pnrTimeModulus = 36 * 36 * 36 * 36 * 36 * 36
)

// NewPNR returns a booking reference: six base-36 characters of the Unix
// second followed by six random characters (30 bits from crypto/rand).
// The unique index on bookings.pnr is the final arbiter.
func NewPNR(now time.Time) (string, error) {
    var buf [pnrRandomChars]byte
    if _, err := rand.Read(buf[:]); err != nil {
        return "", err
    }
    ts := strings.ToUpper(strconv.FormatInt(now.Unix()%pnrTimeModulus, 36))
    if pad := pnrTimeChars - len(ts); pad > 0 {
        ts = strings.Repeat("0", pad) + ts
    }
    var b strings.Builder
    b.Grow(PNRLength)
    b.WriteString(ts)
    for _, c := range buf {
        b.WriteByte(pnrAlphabet[c&31])
    }
    return b.String(), nil
}
