/*
 * Copyright 2022 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ir

import (
    `fmt`
)

type VarType uint8

const (
    TypeVoid VarType = iota
    TypeBool
    TypeByte
    TypeUByte
    TypeShort
    TypeUShort
    TypeInt
    TypeUInt
    TypeLong
    TypeULong
    TypeFloat
    TypeDouble
    TypeRef
    TypeByref
    TypeStruct
    TypeSIMD
)

const (
    _T_int = 1 << iota
    _T_uns
    _T_fp
    _T_gc
)

var _TypeTab = [...]struct {
    name  string
    size  int
    attrs int
} {
    TypeVoid   : { "void"   , 0 , 0 },
    TypeBool   : { "bool"   , 1 , _T_int | _T_uns },
    TypeByte   : { "byte"   , 1 , _T_int },
    TypeUByte  : { "ubyte"  , 1 , _T_int | _T_uns },
    TypeShort  : { "short"  , 2 , _T_int },
    TypeUShort : { "ushort" , 2 , _T_int | _T_uns },
    TypeInt    : { "int"    , 4 , _T_int },
    TypeUInt   : { "uint"   , 4 , _T_int | _T_uns },
    TypeLong   : { "long"   , 8 , _T_int },
    TypeULong  : { "ulong"  , 8 , _T_int | _T_uns },
    TypeFloat  : { "float"  , 4 , _T_fp },
    TypeDouble : { "double" , 8 , _T_fp },
    TypeRef    : { "ref"    , 8 , _T_gc },
    TypeByref  : { "byref"  , 8 , _T_gc },
    TypeStruct : { "struct" , 0 , 0 },
    TypeSIMD   : { "simd"   , 16, 0 },
}

func (self VarType) String() string {
    if int(self) < len(_TypeTab) {
        return _TypeTab[self].name
    } else {
        return fmt.Sprintf("type(%d)", self)
    }
}

func (self VarType) Size() int        { return _TypeTab[self].size }
func (self VarType) IsIntegral() bool { return _TypeTab[self].attrs & _T_int != 0 }
func (self VarType) IsUnsigned() bool { return _TypeTab[self].attrs & _T_uns != 0 }
func (self VarType) IsFloating() bool { return _TypeTab[self].attrs & _T_fp != 0 }
func (self VarType) IsGC() bool       { return _TypeTab[self].attrs & _T_gc != 0 }

// IsSmall reports integral types narrower than 32 bits.
func (self VarType) IsSmall() bool {
    return self.IsIntegral() && self.Size() < 4
}

// IsLong reports 64-bit integers, which take two registers on 32-bit targets.
func (self VarType) IsLong() bool {
    return self == TypeLong || self == TypeULong
}

// Actual returns the type the value has once loaded into a register.
func (self VarType) Actual() VarType {
    switch {
        case self.IsSmall()     : return TypeInt
        case self == TypeUInt   : return TypeInt
        case self == TypeULong  : return TypeLong
        default                 : return self
    }
}

// Wrap truncates v to the width of the type, then sign or zero extends
// it back to 64 bits.
func (self VarType) Wrap(v int64) int64 {
    switch self {
        case TypeBool   : if v != 0 { return 1 } else { return 0 }
        case TypeByte   : return int64(int8(v))
        case TypeUByte  : return int64(uint8(v))
        case TypeShort  : return int64(int16(v))
        case TypeUShort : return int64(uint16(v))
        case TypeInt    : return int64(int32(v))
        case TypeUInt   : return int64(uint32(v))
        default         : return v
    }
}

// ParseType looks a type up by its printed name.
func ParseType(name string) (VarType, bool) {
    for i, t := range _TypeTab {
        if t.name == name {
            return VarType(i), true
        }
    }
    return TypeVoid, false
}
