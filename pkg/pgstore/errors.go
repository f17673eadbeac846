package pgstore

import "errors"

var ErrCorruptRow = errors.New("pgstore: stored row cannot be decoded")
