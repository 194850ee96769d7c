package uart

// FakePort is an in-memory Port double for tests: Feed queues bytes
// for ReadByte/Available, and Written records each WriteArray call.
type FakePort struct {
	rx      []byte
	Written [][]byte
	failErr error
}

// Feed appends b to the bytes available for reading.
func (f *FakePort) Feed(b []byte) { f.rx = append(f.rx, b...) }

// FailWrites causes WriteArray to return err on every call. Pass nil
// to clear it.
func (f *FakePort) FailWrites(err error) { f.failErr = err }

func (f *FakePort) Available() (int, error) { return len(f.rx), nil }

func (f *FakePort) ReadByte() (byte, error) {
	if len(f.rx) == 0 {
		return 0, errNoData
	}
	b := f.rx[0]
	f.rx = f.rx[1:]
	return b, nil
}

func (f *FakePort) WriteArray(data []byte) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.Written = append(f.Written, append([]byte(nil), data...))
	return nil
}
