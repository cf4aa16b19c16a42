//go:build ceph

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

package ceph

import (
	"encoding/binary"
	"fmt"
)

func frameEntry(entry []byte) []byte {
	out := make([]byte, 4+len(entry))
	binary.BigEndian.PutUint32(out[:4], uint32(len(entry)))
	copy(out[4:], entry)
	return out
}

func decodeFrames(data []byte) ([][]byte, error) {
	var out [][]byte
	i := 0
	for i < len(data) {
		if i+4 > len(data) {
			return nil, fmt.Errorf("truncated frame header at offset %d", i)
		}
		n := int(binary.BigEndian.Uint32(data[i : i+4]))
		i += 4
		if i+n > len(data) {
			return nil, fmt.Errorf("truncated frame body at offset %d", i)
		}
		out = append(out, data[i:i+n])
		i += n
	}
	return out, nil
}
