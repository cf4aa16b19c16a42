/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package protocol

// StringCodec is the Codec[string] every structure example and test in
// this module uses by default; hosts that store richer element types
// supply their own Codec[T] instead (see §3's "codecs injected from the
// host").
type StringCodec struct{}

func (StringCodec) Encode(w *Writer, v string) { w.WriteString(v) }
func (StringCodec) Decode(r *Reader) (string, error) {
	return r.ReadString()
}

// Int64Codec is a Codec[int64] for structures storing plain integers
// (ring buffer and time-window buffer fixtures, mostly).
type Int64Codec struct{}

func (Int64Codec) Encode(w *Writer, v int64) { w.WriteVarint(v) }
func (Int64Codec) Decode(r *Reader) (int64, error) {
	return r.ReadVarint()
}
